package quant

import "math"

// Candidate inverse scales are searched in steps of 0.1 around the reference
// -8/max, the same neighbourhood ggml's make_qx_quants explores.
const weightedSearchSteps = 9

// QuantizeQ4_0Weighted writes nrows Q4_0 rows of nPerRow values and returns
// the number of bytes written. When imatrix is non-nil (one non-negative
// weight per column) every block picks the scale and codes that minimise
// sum_j w_j*(x_j - code_j*d)^2, with d evaluated at its stored fp16 value.
// Reference rounding is always the first candidate, so the weighted error of
// the result never exceeds that of QuantizeRowQ4_0.
func QuantizeQ4_0Weighted(src []float32, dst []byte, nrows, nPerRow int, imatrix []float32) int {
	nb := nPerRow / QK
	rowBytes := nb * BlockQ4_0Size
	for r := 0; r < nrows; r++ {
		row := src[r*nPerRow : (r+1)*nPerRow]
		out := dst[r*rowBytes : (r+1)*rowBytes]
		if imatrix == nil {
			QuantizeRowQ4_0(row, out)
			continue
		}
		for b := 0; b < nb; b++ {
			quantizeBlockQ4_0Weighted(
				row[b*QK:(b+1)*QK],
				imatrix[b*QK:(b+1)*QK],
				out[b*BlockQ4_0Size:(b+1)*BlockQ4_0Size],
			)
		}
	}
	return nrows * rowBytes
}

func quantizeBlockQ4_0Weighted(x, w []float32, blk []byte) {
	var best, cand [QK]int8

	d0 := q4Scale(x)
	var id0 float32
	if d0 != 0 {
		id0 = 1 / d0
	}
	for j, v := range x {
		best[j] = int8(nibbleQ4_0(v*id0)) - 8
	}
	bestD := RoundFP16(d0)
	bestErr := weightedError(x, w, best[:], bestD)

	if d0 != 0 {
		m := d0 * -8
		for s := -weightedSearchSteps; s <= weightedSearchSteps; s++ {
			iscale := -(8 + 0.1*float32(s)) / m
			var sumlx, suml2 float64
			for j, v := range x {
				l := math.Round(float64(iscale * v))
				l = math.Max(-8, math.Min(7, l))
				cand[j] = int8(l)
				sumlx += float64(w[j]) * l * float64(v)
				suml2 += float64(w[j]) * l * l
			}
			if suml2 == 0 {
				continue
			}
			d := RoundFP16(float32(sumlx / suml2))
			if e := weightedError(x, w, cand[:], d); e < bestErr {
				bestErr = e
				bestD = d
				best = cand
			}
		}
	}

	putScale(blk, bestD)
	qs := blk[2:BlockQ4_0Size]
	for j := 0; j < QK/2; j++ {
		qs[j] = byte(best[j]+8) | byte(best[j+QK/2]+8)<<4
	}
}

func weightedError(x, w []float32, codes []int8, d float32) float64 {
	var sum float64
	for j, v := range x {
		diff := float64(v) - float64(codes[j])*float64(d)
		sum += float64(w[j]) * diff * diff
	}
	return sum
}

// QuantizeQ4_0_4x4 quantizes (weighted when imatrix is non-nil) and packs
// nrows rows into 4-row groups with a 4-byte interleave. It returns the
// number of bytes written.
func QuantizeQ4_0_4x4(src []float32, dst []byte, nrows, nPerRow int, imatrix []float32) int {
	return quantizeQ4_0Interleaved(src, dst, nrows, nPerRow, 4, 4, imatrix)
}

// QuantizeQ4_0_4x8 is QuantizeQ4_0_4x4 with an 8-byte interleave.
func QuantizeQ4_0_4x8(src []float32, dst []byte, nrows, nPerRow int, imatrix []float32) int {
	return quantizeQ4_0Interleaved(src, dst, nrows, nPerRow, 4, 8, imatrix)
}

// QuantizeQ4_0_8x8 packs 8-row groups with an 8-byte interleave.
func QuantizeQ4_0_8x8(src []float32, dst []byte, nrows, nPerRow int, imatrix []float32) int {
	return quantizeQ4_0Interleaved(src, dst, nrows, nPerRow, 8, 8, imatrix)
}

func quantizeQ4_0Interleaved(src []float32, dst []byte, nrows, nPerRow, r, width int, imatrix []float32) int {
	nb := nPerRow / QK
	groupRows := r * nb * BlockQ4_0Size
	tmp := make([]byte, groupRows)
	for g := 0; g < nrows/r; g++ {
		QuantizeQ4_0Weighted(src[g*r*nPerRow:(g+1)*r*nPerRow], tmp, r, nPerRow, imatrix)
		repackQ4_0(dst[g*groupRows:(g+1)*groupRows], tmp, r, nPerRow, r, width, true)
	}
	return nrows * nb * BlockQ4_0Size
}

// QuantizeMatrix is the checked entry point for weight matrices: it
// validates the shape against dt and the importance vector, then runs the
// matching quantizer. Row-major Q4_0 honours imatrix; Q8_0 and the float
// encodings ignore it.
func QuantizeMatrix(dt DType, src []float32, nrows, nPerRow int, imatrix []float32) ([]byte, error) {
	if nrows <= 0 || nPerRow <= 0 {
		return nil, preconditionf("quantize: invalid shape %dx%d", nrows, nPerRow)
	}
	if len(src) != nrows*nPerRow {
		return nil, preconditionf("quantize: have %d values, want %d", len(src), nrows*nPerRow)
	}
	if imatrix != nil && len(imatrix) != nPerRow {
		return nil, preconditionf("quantize: importance vector has %d entries, want %d", len(imatrix), nPerRow)
	}
	size, err := MatrixSize(dt, int64(nrows), int64(nPerRow))
	if err != nil {
		return nil, preconditionf("quantize: %v", err)
	}
	r, width := dt.Interleave()
	if nrows%r != 0 {
		return nil, preconditionf("quantize: %d rows are not divisible by the group size %d", nrows, r)
	}
	dst := make([]byte, size)
	switch dt {
	case DTypeQ4_0:
		QuantizeQ4_0Weighted(src, dst, nrows, nPerRow, imatrix)
	case DTypeQ4_0x4x4, DTypeQ4_0x4x8, DTypeQ4_0x8x8:
		quantizeQ4_0Interleaved(src, dst, nrows, nPerRow, r, width, imatrix)
	default:
		return Quantize(dt, src)
	}
	return dst, nil
}
