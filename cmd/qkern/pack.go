package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qkern/internal/logger"
	"github.com/samcharles93/qkern/pkg/quant"
)

type packSummary struct {
	Input  string `json:"input"`
	Output string `json:"output"`
	From   string `json:"from"`
	To     string `json:"to"`
	Rows   int    `json:"rows"`
	Cols   int    `json:"cols"`
	Bytes  int    `json:"bytes"`
}

func packCmd() *cli.Command {
	return repackCommand("pack", "Interleave a row-major Q4_0 matrix", true)
}

func unpackCmd() *cli.Command {
	return repackCommand("unpack", "Convert an interleaved Q4_0 matrix back to row-major", false)
}

func repackCommand(name, usage string, pack bool) *cli.Command {
	var (
		inPath, outPath string
		cols            int64
	)
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "in", Aliases: []string{"i"}, Usage: "input file", Required: true, Destination: &inPath},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output file", Required: true, Destination: &outPath},
			&cli.Int64Flag{Name: "cols", Aliases: []string{"k"}, Usage: "values per row", Required: true, Destination: &cols},
			layoutFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyLayoutConfig(cmd, configFrom(ctx))
			dt, err := parseLayout(interleaving)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			data, err := os.ReadFile(inPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: read input: %v", err), 1)
			}
			rowBytes, err := quant.RowSize(quant.DTypeQ4_0, cols)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			rows, err := inferRows(int64(len(data)), int64(rowBytes))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			r, w := dt.Interleave()
			logger.FromContext(ctx).Debug(name, "layout", dt.String(), "rows", rows, "cols", cols)

			var out []byte
			from, to := quant.DTypeQ4_0, dt
			if pack {
				out, err = quant.RepackQ4_0(data, int(rows), int(cols), r, w)
			} else {
				from, to = dt, quant.DTypeQ4_0
				out, err = quant.UnrepackQ4_0(data, int(rows), int(cols), r, w)
			}
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %s: %v", name, err), 1)
			}
			if err := writeFile(outPath, out); err != nil {
				return cli.Exit(fmt.Sprintf("error: write output: %v", err), 1)
			}
			return printJSON(packSummary{
				Input:  inPath,
				Output: outPath,
				From:   from.String(),
				To:     to.String(),
				Rows:   int(rows),
				Cols:   int(cols),
				Bytes:  len(out),
			})
		},
	}
}
