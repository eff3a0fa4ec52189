package main

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qkern/internal/backend"
	"github.com/samcharles93/qkern/internal/logger"
	"github.com/samcharles93/qkern/internal/tensor"
	"github.com/samcharles93/qkern/pkg/quant"
)

type benchResult struct {
	Backend string  `json:"backend"`
	Device  string  `json:"device,omitempty"`
	Runs    int64   `json:"runs"`
	MeanMS  float64 `json:"mean_ms"`
	GFLOPS  float64 `json:"gflops"`
	MaxErr  float64 `json:"max_abs_err"`
	Error   string  `json:"error,omitempty"`
}

type benchReport struct {
	Type    string        `json:"type"`
	Rows    int64         `json:"rows"`
	K       int64         `json:"k"`
	Batch   int64         `json:"batch"`
	Results []benchResult `json:"results"`
}

// benchProblem is one quantized weight matrix with its activations and
// the f64 product of the dequantized weights.
type benchProblem struct {
	dt         quant.DType
	rows, k, n int64
	raw        []byte
	x          []float32
	want       []float64
}

func benchCmd() *cli.Command {
	var (
		rows, k, batch, runs, warmup, seed int64
		typeName, only                     string
	)
	flags := append(backendFlags(),
		&cli.Int64Flag{Name: "rows", Aliases: []string{"m"}, Usage: "weight rows", Value: 256, Destination: &rows},
		&cli.Int64Flag{Name: "k", Usage: "row length", Value: 1024, Destination: &k},
		&cli.Int64Flag{Name: "batch", Aliases: []string{"n"}, Usage: "activation columns", Value: 4, Destination: &batch},
		&cli.StringFlag{Name: "type", Usage: "weight encoding", Value: "q4_0_8x8", Destination: &typeName},
		&cli.StringFlag{Name: "backends", Usage: "comma-separated backends to compare (default: all compiled in)", Destination: &only},
		&cli.Int64Flag{Name: "runs", Usage: "timed runs per backend", Value: 5, Destination: &runs},
		&cli.Int64Flag{Name: "warmup", Usage: "untimed runs per backend", Value: 1, Destination: &warmup},
		&cli.Int64Flag{Name: "seed", Usage: "random seed", Value: 1, Destination: &seed},
		jsonFlag(),
	)

	return &cli.Command{
		Name:  "bench",
		Usage: "Time a random quantized matmul on each backend",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyBackendConfig(cmd, configFrom(ctx))
			log := logger.FromContext(ctx)
			if runs <= 0 {
				return cli.Exit("error: --runs must be positive", 1)
			}
			dt, err := quant.ParseDType(typeName)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			p, err := newBenchProblem(dt, rows, k, batch, seed)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			names := benchBackends(cmd, only)
			report := benchReport{Type: dt.String(), Rows: rows, K: k, Batch: batch}
			for _, name := range names {
				log.Info("benchmarking", "backend", name, "type", dt.String(), "rows", rows, "k", k, "batch", batch)
				res := p.run(ctx, name, warmup, runs)
				if res.Error != "" {
					log.Warn("backend failed", "backend", name, "error", res.Error)
				}
				report.Results = append(report.Results, res)
			}
			if jsonOut {
				return printJSON(report)
			}
			fmt.Printf("%s  %dx%d  batch %d\n", report.Type, rows, k, batch)
			fmt.Printf("%-8s %10s %10s %12s  %s\n", "backend", "mean ms", "GFLOP/s", "max err", "device")
			for _, r := range report.Results {
				if r.Error != "" {
					fmt.Printf("%-8s %s\n", r.Backend, r.Error)
					continue
				}
				fmt.Printf("%-8s %10.3f %10.2f %12.3g  %s\n", r.Backend, r.MeanMS, r.GFLOPS, r.MaxErr, r.Device)
			}
			return nil
		},
	}
}

// benchBackends picks --backends, then an explicit --backend, then every
// backend compiled in.
func benchBackends(cmd *cli.Command, only string) []string {
	if only != "" {
		return strings.Split(only, ",")
	}
	if cmd.IsSet("backend") && backendName != backend.Auto {
		return []string{backendName}
	}
	return strings.Split(backend.Available(), ",")
}

func newBenchProblem(dt quant.DType, rows, k, n, seed int64) (*benchProblem, error) {
	if rows <= 0 || k <= 0 || n <= 0 {
		return nil, fmt.Errorf("rows, k and batch must be positive")
	}
	w := make([]float32, rows*k)
	x := make([]float32, n*k)
	tensor.FillRand(w, seed, 1)
	tensor.FillRand(x, seed+1, 1)

	raw, err := quant.QuantizeMatrix(dt, w, int(rows), int(k), nil)
	if err != nil {
		return nil, err
	}
	stored, err := quant.DequantizeMatrix(dt, raw, int(rows), int(k))
	if err != nil {
		return nil, err
	}
	want := make([]float64, rows*n)
	for c := int64(0); c < n; c++ {
		for r := int64(0); r < rows; r++ {
			var sum float64
			for i := int64(0); i < k; i++ {
				sum += float64(stored[r*k+i]) * float64(x[c*k+i])
			}
			want[c*rows+r] = sum
		}
	}
	return &benchProblem{dt: dt, rows: rows, k: k, n: n, raw: raw, x: x, want: want}, nil
}

func (p *benchProblem) run(ctx context.Context, name string, warmup, runs int64) benchResult {
	res := benchResult{Backend: name, Runs: runs}
	b, err := backend.New(name, backendOptions())
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer func() { _ = backend.Close(b) }()
	res.Device = backend.Describe(b)

	src0, err := tensor.NewView(p.dt, p.raw, p.k, p.rows)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	src1, _ := tensor.F32View(p.x, p.k, p.n)
	out := make([]float32, p.rows*p.n)
	dst, _ := tensor.F32View(out, p.rows, p.n)
	args := backend.MulMatArgs{
		Src0: &src0, Src1: &src1, Dst: &dst,
		Src0Raw: p.raw, Src1F: p.x, DstF: out,
		RowHigh: p.rows, BatchCols: p.n, PaddedRowSize: p.k,
	}

	for i := int64(0); i < warmup; i++ {
		if err := backend.MulMat(ctx, b, args); err != nil {
			res.Error = err.Error()
			return res
		}
	}
	start := time.Now()
	for i := int64(0); i < runs; i++ {
		if err := backend.MulMat(ctx, b, args); err != nil {
			res.Error = err.Error()
			return res
		}
	}
	elapsed := time.Since(start)

	mean := elapsed.Seconds() / float64(runs)
	res.MeanMS = mean * 1e3
	if mean > 0 {
		res.GFLOPS = 2 * float64(p.rows*p.k*p.n) / mean / 1e9
	}
	for i, v := range out {
		res.MaxErr = math.Max(res.MaxErr, math.Abs(float64(v)-p.want[i]))
	}
	return res
}
