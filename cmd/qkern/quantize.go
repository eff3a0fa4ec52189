package main

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qkern/internal/logger"
	"github.com/samcharles93/qkern/pkg/quant"
)

type quantizeSummary struct {
	Input    string  `json:"input"`
	Output   string  `json:"output"`
	Type     string  `json:"type"`
	Rows     int     `json:"rows"`
	Cols     int     `json:"cols"`
	Bytes    int     `json:"bytes"`
	Weighted bool    `json:"weighted"`
	RMSE     float64 `json:"rmse"`
	MaxErr   float64 `json:"max_abs_err"`
}

func quantizeCmd() *cli.Command {
	var (
		inPath, outPath, imatrixPath, typeName string
		cols                                   int64
	)
	return &cli.Command{
		Name:  "quantize",
		Usage: "Quantize a raw little-endian f32 matrix",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "in", Aliases: []string{"i"}, Usage: "input f32 file", Required: true, Destination: &inPath},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output file", Required: true, Destination: &outPath},
			&cli.Int64Flag{Name: "cols", Aliases: []string{"k"}, Usage: "values per row", Required: true, Destination: &cols},
			&cli.StringFlag{Name: "type", Usage: "q4_0, q8_0, f16, q4_0_4x4, q4_0_4x8 or q4_0_8x8", Value: "q4_0", Destination: &typeName},
			&cli.StringFlag{Name: "imatrix", Usage: "importance vector (raw f32, one value per column)", Destination: &imatrixPath},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			dt, err := quant.ParseDType(typeName)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			src, err := readF32File(inPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: read input: %v", err), 1)
			}
			rows, err := inferRows(int64(len(src)), cols)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			var imatrix []float32
			if imatrixPath != "" {
				if imatrix, err = readF32File(imatrixPath); err != nil {
					return cli.Exit(fmt.Sprintf("error: read imatrix: %v", err), 1)
				}
			}

			scheme, err := quant.SchemeFor(dt)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			log.Debug("quantizing", "type", dt.String(), "rows", rows, "cols", cols, "weighted", imatrix != nil)
			qt, err := scheme.Quantize(src, int(rows), int(cols), imatrix)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: quantize: %v", err), 1)
			}
			back, err := quant.DequantizeMatrix(dt, qt.Data, qt.Rows, qt.PerRow)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: verify: %v", err), 1)
			}
			if err := writeFile(outPath, qt.Data); err != nil {
				return cli.Exit(fmt.Sprintf("error: write output: %v", err), 1)
			}

			sum := quantizeSummary{
				Input:    inPath,
				Output:   outPath,
				Type:     dt.String(),
				Rows:     qt.Rows,
				Cols:     qt.PerRow,
				Bytes:    len(qt.Data),
				Weighted: qt.Weighted,
			}
			sum.RMSE, sum.MaxErr = errorStats(src, back)
			return printJSON(sum)
		},
	}
}

func errorStats(want, got []float32) (rmse, maxAbs float64) {
	if len(want) == 0 {
		return 0, 0
	}
	var sq float64
	for i := range want {
		d := math.Abs(float64(got[i]) - float64(want[i]))
		sq += d * d
		maxAbs = max(maxAbs, d)
	}
	return math.Sqrt(sq / float64(len(want))), maxAbs
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = os.Stdout.Write(b)
	return err
}
