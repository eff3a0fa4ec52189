package quant

// Activation side of the interleaved kernels: four Q8_0 rows sharing one
// block column are stored as four scales followed by 128 codes interleaved
// width codes at a time.

// QuantizeQ8_0x4 quantizes four consecutive rows of k values from x (row
// stride k) into k/QK interleaved Q8_0x4 blocks.
func QuantizeQ8_0x4(x []float32, dst []byte, k, width int) {
	nb := k / QK
	var id [4]float32
	for i := 0; i < nb; i++ {
		blk := dst[i*BlockQ8_0x4Size : (i+1)*BlockQ8_0x4Size]
		for row := 0; row < 4; row++ {
			src := x[row*k+i*QK : row*k+(i+1)*QK]
			var amax float32
			for _, v := range src {
				amax = max(amax, abs32(v))
			}
			d := amax / 127
			id[row] = 0
			if d != 0 {
				id[row] = 1 / d
			}
			putScale(blk[2*row:], d)
		}
		qs := blk[8:]
		for j := 0; j < 4*QK; j++ {
			row, off := interleaveSource(j, 4, width)
			qs[j] = byte(roundInt8(x[row*k+i*QK+off] * id[row]))
		}
	}
}

// QuantizeMatQ8_0 quantizes nrows activation rows (a multiple of 4) into
// consecutive runs of Q8_0x4 blocks, one run of nPerRow/QK blocks per group.
func QuantizeMatQ8_0(x []float32, dst []byte, nrows, nPerRow, width int) {
	nb := nPerRow / QK
	for g := 0; g < nrows/4; g++ {
		QuantizeQ8_0x4(x[g*4*nPerRow:], dst[g*nb*BlockQ8_0x4Size:], nPerRow, width)
	}
}

// PackQ8_0x4 interleaves one plain Q8_0 block from each of four rows. The
// result is byte-identical to QuantizeQ8_0x4 applied to the source floats.
func PackQ8_0x4(dst []byte, rows [][]byte, width int) {
	for i := 0; i < 4; i++ {
		copy(dst[2*i:2*i+2], rows[i][:2])
	}
	qs := dst[8:]
	for j := 0; j < 4*QK; j++ {
		row, off := interleaveSource(j, 4, width)
		qs[j] = rows[row][2+off]
	}
}

// UnpackQ8_0x4 is the inverse of PackQ8_0x4.
func UnpackQ8_0x4(src []byte, rows [][]byte, width int) {
	for i := 0; i < 4; i++ {
		copy(rows[i][:2], src[2*i:2*i+2])
	}
	qs := src[8:]
	for j := 0; j < 4*QK; j++ {
		row, off := interleaveSource(j, 4, width)
		rows[row][2+off] = qs[j]
	}
}

// PackRowsQ8_0x4 converts nrows (a multiple of 4) row-major Q8_0 rows whose
// stride is rowBytes into Q8_0x4 groups covering the first nPerRow values of
// each row. A stride larger than the row lets callers pass padded rows.
func PackRowsQ8_0x4(dst, src []byte, nrows, nPerRow, rowBytes, width int) {
	nb := nPerRow / QK
	rows := make([][]byte, 4)
	for g := 0; g < nrows/4; g++ {
		for x := 0; x < nb; x++ {
			for i := 0; i < 4; i++ {
				off := (g*4+i)*rowBytes + x*BlockQ8_0Size
				rows[i] = src[off : off+BlockQ8_0Size]
			}
			goff := (g*nb + x) * BlockQ8_0x4Size
			PackQ8_0x4(dst[goff:goff+BlockQ8_0x4Size], rows, width)
		}
	}
}
