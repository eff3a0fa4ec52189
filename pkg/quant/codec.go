package quant

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrPrecondition marks a caller contract violation detected at a checked
// entry point (lengths not block aligned, row groups not divisible, short
// buffers). Kernels themselves never return it; they assume valid input.
var ErrPrecondition = errors.New("precondition violated")

func preconditionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPrecondition, fmt.Sprintf(format, args...))
}

// QuantizeRowQ4_0 quantizes len(src) values (a multiple of QK) into Q4_0
// blocks. The scale is the signed value of largest magnitude divided by -8,
// so that value maps exactly onto code -8.
func QuantizeRowQ4_0(src []float32, dst []byte) {
	nb := len(src) / QK
	for i := 0; i < nb; i++ {
		x := src[i*QK : (i+1)*QK]
		blk := dst[i*BlockQ4_0Size : (i+1)*BlockQ4_0Size]
		d := q4Scale(x)
		quantizeBlockQ4_0(x, blk, d)
	}
}

func q4Scale(x []float32) float32 {
	var amax, signed float32
	for _, v := range x {
		if a := abs32(v); a > amax {
			amax = a
			signed = v
		}
	}
	return signed / -8
}

// quantizeBlockQ4_0 writes one block using scale d.
func quantizeBlockQ4_0(x []float32, blk []byte, d float32) {
	var id float32
	if d != 0 {
		id = 1 / d
	}
	putScale(blk, d)
	qs := blk[2:BlockQ4_0Size]
	for j := 0; j < QK/2; j++ {
		lo := nibbleQ4_0(x[j] * id)
		hi := nibbleQ4_0(x[QK/2+j] * id)
		qs[j] = lo | hi<<4
	}
}

func nibbleQ4_0(v float32) byte {
	q := int(v + 8.5)
	if q < 0 {
		q = 0
	}
	if q > 15 {
		q = 15
	}
	return byte(q)
}

// DequantizeRowQ4_0 expands Q4_0 blocks into len(dst) values.
func DequantizeRowQ4_0(src []byte, dst []float32) {
	nb := len(dst) / QK
	for i := 0; i < nb; i++ {
		blk := src[i*BlockQ4_0Size : (i+1)*BlockQ4_0Size]
		d := scaleAt(blk)
		qs := blk[2:]
		y := dst[i*QK : (i+1)*QK]
		for j := 0; j < QK/2; j++ {
			y[j] = float32(int(qs[j]&0x0F)-8) * d
			y[j+QK/2] = float32(int(qs[j]>>4)-8) * d
		}
	}
}

// QuantizeRowQ8_0 quantizes len(src) values into Q8_0 blocks with
// d = amax/127 and codes rounded half away from zero.
func QuantizeRowQ8_0(src []float32, dst []byte) {
	nb := len(src) / QK
	for i := 0; i < nb; i++ {
		x := src[i*QK : (i+1)*QK]
		blk := dst[i*BlockQ8_0Size : (i+1)*BlockQ8_0Size]
		var amax float32
		for _, v := range x {
			amax = max(amax, abs32(v))
		}
		d := amax / 127
		var id float32
		if d != 0 {
			id = 1 / d
		}
		putScale(blk, d)
		for j, v := range x {
			blk[2+j] = byte(roundInt8(v * id))
		}
	}
}

// DequantizeRowQ8_0 expands Q8_0 blocks into len(dst) values.
func DequantizeRowQ8_0(src []byte, dst []float32) {
	nb := len(dst) / QK
	for i := 0; i < nb; i++ {
		blk := src[i*BlockQ8_0Size : (i+1)*BlockQ8_0Size]
		d := scaleAt(blk)
		y := dst[i*QK : (i+1)*QK]
		for j := range y {
			y[j] = float32(int8(blk[2+j])) * d
		}
	}
}

// QuantizeSymmetric quantizes one block with scale = max|x| / qmax and
// codes round(x/scale) clamped to [-qmax, qmax]. An all-zero block yields
// scale 0 and zero codes.
func QuantizeSymmetric(x []float32, qmax int) (scale float32, codes []int8) {
	codes = make([]int8, len(x))
	if qmax <= 0 || qmax > 127 {
		return 0, codes
	}
	var amax float32
	for _, v := range x {
		amax = max(amax, abs32(v))
	}
	if amax == 0 {
		return 0, codes
	}
	scale = amax / float32(qmax)
	for i, v := range x {
		q := math.Round(float64(v / scale))
		q = math.Max(-float64(qmax), math.Min(float64(qmax), q))
		codes[i] = int8(q)
	}
	return scale, codes
}

// DequantizeSymmetric is the inverse of QuantizeSymmetric.
func DequantizeSymmetric(scale float32, codes []int8) []float32 {
	out := make([]float32, len(codes))
	for i, c := range codes {
		out[i] = float32(c) * scale
	}
	return out
}

// Quantize encodes src as dt rows. It is the checked counterpart of the row
// kernels: len(src) must be a multiple of QK for block encodings.
func Quantize(dt DType, src []float32) ([]byte, error) {
	size, err := RowSize(dt, int64(len(src)))
	if err != nil {
		if errors.Is(err, ErrUnknownDType) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrPrecondition, err)
	}
	dst := make([]byte, size)
	switch dt {
	case DTypeF32:
		for i, v := range src {
			binary.LittleEndian.PutUint32(dst[4*i:], math.Float32bits(v))
		}
	case DTypeF16:
		for i, v := range src {
			putScale(dst[2*i:], v)
		}
	case DTypeQ4_0:
		QuantizeRowQ4_0(src, dst)
	case DTypeQ8_0:
		QuantizeRowQ8_0(src, dst)
	default:
		return nil, fmt.Errorf("quantize: %s rows are produced by the interleaved quantizers", dt)
	}
	return dst, nil
}

// Dequantize decodes n values of dt from src.
func Dequantize(dt DType, src []byte, n int) ([]float32, error) {
	size, err := RowSize(dt, int64(n))
	if err != nil {
		if errors.Is(err, ErrUnknownDType) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrPrecondition, err)
	}
	if uint64(len(src)) < size {
		return nil, preconditionf("dequantize: need %d bytes for %d %s values, have %d", size, n, dt, len(src))
	}
	out := make([]float32, n)
	switch dt {
	case DTypeF32:
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[4*i:]))
		}
	case DTypeF16:
		for i := range out {
			out[i] = scaleAt(src[2*i:])
		}
	case DTypeQ4_0:
		DequantizeRowQ4_0(src, out)
	case DTypeQ8_0:
		DequantizeRowQ8_0(src, out)
	default:
		return nil, fmt.Errorf("dequantize: %s must be unpacked first", dt)
	}
	return out, nil
}

// DequantizeRow decodes one row of any supported row-major dtype into dst.
// Interleaved layouts are not row-major and are rejected by the caller.
func DequantizeRow(dt DType, src []byte, dst []float32) {
	switch dt {
	case DTypeF32:
		for i := range dst {
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[4*i:]))
		}
	case DTypeF16:
		for i := range dst {
			dst[i] = scaleAt(src[2*i:])
		}
	case DTypeQ4_0:
		DequantizeRowQ4_0(src, dst)
	case DTypeQ8_0:
		DequantizeRowQ8_0(src, dst)
	}
}

func roundInt8(v float32) int8 {
	r := math.Round(float64(v))
	if r > 127 {
		r = 127
	} else if r < -128 {
		r = -128
	}
	return int8(r)
}

func abs32(v float32) float32 {
	return math.Float32frombits(math.Float32bits(v) &^ (1 << 31))
}
