package quant

import (
	"errors"
	"fmt"
	"strings"
)

// QK is the number of values covered by one quantized block.
const QK = 32

// Block sizes in bytes. Keep these stable: consumers read the layouts
// directly without a typed accessor.
const (
	BlockQ4_0Size   = 2 + QK/2          // fp16 d + 16 nibble bytes
	BlockQ8_0Size   = 2 + QK            // fp16 d + 32 int8 codes
	BlockQ4_0x4Size = 4 * BlockQ4_0Size // 4 scales + 64 interleaved bytes
	BlockQ4_0x8Size = 8 * BlockQ4_0Size // 8 scales + 128 interleaved bytes
	BlockQ8_0x4Size = 4 * BlockQ8_0Size // 4 scales + 128 interleaved codes
)

// DType identifies a row encoding understood by the kernels.
// Keep these stable forever; add new values only.
type DType uint32

const (
	DTypeUnknown DType = iota
	DTypeF32
	DTypeF16
	DTypeQ4_0
	DTypeQ8_0

	// Interleaved Q4_0 weight layouts: rows per group x interleave width.
	DTypeQ4_0x4x4
	DTypeQ4_0x4x8
	DTypeQ4_0x8x8
)

var dtypeNames = map[DType]string{
	DTypeF32:      "f32",
	DTypeF16:      "f16",
	DTypeQ4_0:     "q4_0",
	DTypeQ8_0:     "q8_0",
	DTypeQ4_0x4x4: "q4_0_4x4",
	DTypeQ4_0x4x8: "q4_0_4x8",
	DTypeQ4_0x8x8: "q4_0_8x8",
}

var ErrUnknownDType = errors.New("quant: unknown dtype")

func (d DType) String() string {
	if s, ok := dtypeNames[d]; ok {
		return s
	}
	return fmt.Sprintf("dtype(%d)", uint32(d))
}

// ParseDType accepts the names printed by String; case and '-' vs '_' are ignored.
func ParseDType(s string) (DType, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for d, name := range dtypeNames {
		if name == norm {
			return d, nil
		}
	}
	return DTypeUnknown, fmt.Errorf("%w: %q", ErrUnknownDType, s)
}

// IsQuantized reports whether rows of d are stored in 32-value blocks.
func (d DType) IsQuantized() bool {
	switch d {
	case DTypeQ4_0, DTypeQ8_0, DTypeQ4_0x4x4, DTypeQ4_0x4x8, DTypeQ4_0x8x8:
		return true
	}
	return false
}

// Interleave returns the rows per group and the interleave width for the
// packed layouts, or (1, 0) for row-major encodings.
func (d DType) Interleave() (rows, width int) {
	switch d {
	case DTypeQ4_0x4x4:
		return 4, 4
	case DTypeQ4_0x4x8:
		return 4, 8
	case DTypeQ4_0x8x8:
		return 8, 8
	}
	return 1, 0
}

// InterleavedQ4_0 maps a (rows, width) pair to its packed dtype.
func InterleavedQ4_0(rows, width int) (DType, bool) {
	switch {
	case rows == 4 && width == 4:
		return DTypeQ4_0x4x4, true
	case rows == 4 && width == 8:
		return DTypeQ4_0x4x8, true
	case rows == 8 && width == 8:
		return DTypeQ4_0x8x8, true
	}
	return DTypeUnknown, false
}

// ElemSize is the byte width of one element for float encodings and 0 for
// block encodings.
func (d DType) ElemSize() int {
	switch d {
	case DTypeF32:
		return 4
	case DTypeF16:
		return 2
	}
	return 0
}

// RowSize returns the bytes needed for one row of n values. Interleaved
// layouts store the same bytes per row as Q4_0; only the order differs.
func RowSize(d DType, n int64) (uint64, error) {
	if n < 0 {
		return 0, errors.New("quant: negative row length")
	}
	un := uint64(n)
	switch d {
	case DTypeF32, DTypeF16:
		size, ok := mulUint64(un, uint64(d.ElemSize()))
		if !ok {
			return 0, errors.New("quant: row too large")
		}
		return size, nil
	case DTypeQ4_0, DTypeQ4_0x4x4, DTypeQ4_0x4x8, DTypeQ4_0x8x8:
		if un%QK != 0 {
			return 0, fmt.Errorf("quant: row length %d is not a multiple of %d", n, QK)
		}
		size, ok := mulUint64(un/QK, BlockQ4_0Size)
		if !ok {
			return 0, errors.New("quant: row too large")
		}
		return size, nil
	case DTypeQ8_0:
		if un%QK != 0 {
			return 0, fmt.Errorf("quant: row length %d is not a multiple of %d", n, QK)
		}
		size, ok := mulUint64(un/QK, BlockQ8_0Size)
		if !ok {
			return 0, errors.New("quant: row too large")
		}
		return size, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrUnknownDType, uint32(d))
}

// MatrixSize returns RowSize(d, nPerRow) * nrows with overflow checks.
func MatrixSize(d DType, nrows, nPerRow int64) (uint64, error) {
	if nrows < 0 {
		return 0, errors.New("quant: negative row count")
	}
	row, err := RowSize(d, nPerRow)
	if err != nil {
		return 0, err
	}
	size, ok := mulUint64(row, uint64(nrows))
	if !ok {
		return 0, errors.New("quant: matrix too large")
	}
	return size, nil
}

func mulUint64(a, b uint64) (uint64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > ^uint64(0)/b {
		return 0, false
	}
	return a * b, true
}
