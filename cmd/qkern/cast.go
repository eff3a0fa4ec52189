package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qkern/internal/backend/tile"
	"github.com/samcharles93/qkern/internal/logger"
	"github.com/samcharles93/qkern/internal/tensor"
	"github.com/samcharles93/qkern/pkg/quant"
)

func castCmd() *cli.Command {
	var (
		inPath, outPath, fromName, toName string
		cols                              int64
	)
	flags := []cli.Flag{
		&cli.StringFlag{Name: "in", Aliases: []string{"i"}, Usage: "input file", Required: true, Destination: &inPath},
		&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output file", Required: true, Destination: &outPath},
		&cli.StringFlag{Name: "from", Usage: "input element type (f32, f16)", Value: "f32", Destination: &fromName},
		&cli.StringFlag{Name: "to", Usage: "output element type (f32, f16)", Value: "f16", Destination: &toName},
		&cli.Int64Flag{Name: "cols", Aliases: []string{"k"}, Usage: "elements per row", Required: true, Destination: &cols},
	}
	flags = append(flags, backendFlags()...)
	return &cli.Command{
		Name:  "cast",
		Usage: "Copy a raw f32/f16 matrix through the tile engine, converting the element type",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyBackendConfig(cmd, configFrom(ctx))
			from, err := elementType(fromName)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: --from: %v", err), 1)
			}
			to, err := elementType(toName)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: --to: %v", err), 1)
			}
			data, err := os.ReadFile(inPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: read input: %v", err), 1)
			}
			if len(data)%from.ElemSize() != 0 {
				return cli.Exit(fmt.Sprintf("error: %s is not a whole number of %s elements", inPath, from), 1)
			}
			rows, err := inferRows(int64(len(data)/from.ElemSize()), cols)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			src, err := tensor.NewView(from, data, cols, rows)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			out := make([]byte, rows*cols*int64(to.ElemSize()))
			dst, err := tensor.NewView(to, out, cols, rows)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			eng := tile.NewEngine(backendOptions().Tile)
			logger.FromContext(ctx).Debug("cast", "from", from.String(), "to", to.String(), "rows", rows, "cols", cols, "lanes", eng.Lanes())
			if err := tile.Dup(ctx, eng, &src, &dst); err != nil {
				return cli.Exit(fmt.Sprintf("error: cast: %v", err), 1)
			}
			if err := writeFile(outPath, out); err != nil {
				return cli.Exit(fmt.Sprintf("error: write output: %v", err), 1)
			}
			fmt.Printf("wrote %d x %d %s to %s\n", rows, cols, to, outPath)
			return nil
		},
	}
}

func elementType(name string) (quant.DType, error) {
	dt, err := quant.ParseDType(name)
	if err != nil {
		return quant.DTypeUnknown, err
	}
	if dt != quant.DTypeF32 && dt != quant.DTypeF16 {
		return quant.DTypeUnknown, fmt.Errorf("cast supports f32 and f16, got %s", dt)
	}
	return dt, nil
}
