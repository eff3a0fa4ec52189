package main

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/samcharles93/qkern/pkg/quant"
)

// readF32File reads a raw little-endian float32 file.
func readF32File(path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%s: size %d is not a multiple of 4", path, len(data))
	}
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return out, nil
}

func writeF32File(path string, values []float32) error {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return writeFile(path, buf)
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// parseLayout maps "RxW" (4x4, 4x8, 8x8) to the interleaved Q4_0 type.
func parseLayout(s string) (quant.DType, error) {
	rs, ws, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return quant.DTypeUnknown, fmt.Errorf("layout %q: want RxW such as 8x8", s)
	}
	r, err := strconv.Atoi(rs)
	if err != nil {
		return quant.DTypeUnknown, fmt.Errorf("layout %q: %w", s, err)
	}
	w, err := strconv.Atoi(ws)
	if err != nil {
		return quant.DTypeUnknown, fmt.Errorf("layout %q: %w", s, err)
	}
	dt, ok := quant.InterleavedQ4_0(r, w)
	if !ok {
		return quant.DTypeUnknown, fmt.Errorf("layout %q: supported layouts are 4x4, 4x8 and 8x8", s)
	}
	return dt, nil
}

// inferRows derives the row count of a flat buffer of n values.
func inferRows(n, cols int64) (int64, error) {
	if cols <= 0 {
		return 0, fmt.Errorf("--cols must be positive")
	}
	if n%cols != 0 {
		return 0, fmt.Errorf("%d values do not divide into rows of %d", n, cols)
	}
	return n / cols, nil
}
