package quant

// Interleaved groups store the R row scales first (row order), followed by
// the R rows' nibble bytes taken width bytes at a time, round robin over the
// rows. Nibbles are stored XOR 0x88 so a kernel can recover 16*code from
// int8(b<<4) and int8(b&0xF0) without an offset subtraction.

const nibbleBias = 0x88

// interleaveSource maps byte i of an interleaved payload for r rows and
// the given width to the source row and the byte within that row.
func interleaveSource(i, r, width int) (row, off int) {
	chunk := r * width
	row = (i % chunk) / width
	off = (i/chunk)*width + i%width
	return row, off
}

// PackQ4_0 interleaves one Q4_0 block from each of rows into dst, which must
// hold len(rows)*BlockQ4_0Size bytes. len(rows) is 4 or 8 and width is 4 or 8.
func PackQ4_0(dst []byte, rows [][]byte, width int) {
	r := len(rows)
	for i := 0; i < r; i++ {
		copy(dst[2*i:2*i+2], rows[i][:2])
	}
	qs := dst[2*r:]
	n := r * QK / 2
	for i := 0; i < n; i++ {
		row, off := interleaveSource(i, r, width)
		qs[i] = rows[row][2+off] ^ nibbleBias
	}
}

// UnpackQ4_0 is the exact inverse of PackQ4_0.
func UnpackQ4_0(src []byte, rows [][]byte, width int) {
	r := len(rows)
	for i := 0; i < r; i++ {
		copy(rows[i][:2], src[2*i:2*i+2])
	}
	qs := src[2*r:]
	n := r * QK / 2
	for i := 0; i < n; i++ {
		row, off := interleaveSource(i, r, width)
		rows[row][2+off] = qs[i] ^ nibbleBias
	}
}

// RepackQ4_0 converts nrows row-major Q4_0 rows of nPerRow values into
// interleaved groups of r rows. Group g, block column x lands at index
// g*nb + x, which is the order the microkernels walk.
func RepackQ4_0(src []byte, nrows, nPerRow, r, width int) ([]byte, error) {
	if err := checkRepack(len(src), nrows, nPerRow, r, width); err != nil {
		return nil, err
	}
	dst := make([]byte, len(src))
	repackQ4_0(dst, src, nrows, nPerRow, r, width, true)
	return dst, nil
}

// UnrepackQ4_0 inverts RepackQ4_0.
func UnrepackQ4_0(src []byte, nrows, nPerRow, r, width int) ([]byte, error) {
	if err := checkRepack(len(src), nrows, nPerRow, r, width); err != nil {
		return nil, err
	}
	dst := make([]byte, len(src))
	repackQ4_0(dst, src, nrows, nPerRow, r, width, false)
	return dst, nil
}

func repackQ4_0(dst, src []byte, nrows, nPerRow, r, width int, pack bool) {
	nb := nPerRow / QK
	rowBytes := nb * BlockQ4_0Size
	groupBytes := r * BlockQ4_0Size
	blocks := make([][]byte, r)
	for g := 0; g < nrows/r; g++ {
		for x := 0; x < nb; x++ {
			plain := src
			if !pack {
				plain = dst
			}
			for i := 0; i < r; i++ {
				off := (g*r+i)*rowBytes + x*BlockQ4_0Size
				blocks[i] = plain[off : off+BlockQ4_0Size]
			}
			goff := (g*nb + x) * groupBytes
			if pack {
				PackQ4_0(dst[goff:goff+groupBytes], blocks, width)
			} else {
				UnpackQ4_0(src[goff:goff+groupBytes], blocks, width)
			}
		}
	}
}

func checkRepack(srcLen, nrows, nPerRow, r, width int) error {
	if _, ok := InterleavedQ4_0(r, width); !ok {
		return preconditionf("repack: unsupported interleave %dx%d", r, width)
	}
	if nrows <= 0 || nPerRow <= 0 {
		return preconditionf("repack: invalid shape %dx%d", nrows, nPerRow)
	}
	if nPerRow%QK != 0 {
		return preconditionf("repack: row length %d is not a multiple of %d", nPerRow, QK)
	}
	if nrows%r != 0 {
		return preconditionf("repack: %d rows are not divisible by the group size %d", nrows, r)
	}
	want := nrows * (nPerRow / QK) * BlockQ4_0Size
	if srcLen != want {
		return preconditionf("repack: have %d bytes, want %d", srcLen, want)
	}
	return nil
}

// DequantizeMatrix decodes nrows contiguous rows of nPerRow values of any
// supported layout. Interleaved groups are unpacked to plain Q4_0 first.
func DequantizeMatrix(dt DType, src []byte, nrows, nPerRow int) ([]float32, error) {
	r, width := dt.Interleave()
	if r <= 1 {
		return Dequantize(dt, src, nrows*nPerRow)
	}
	size, err := MatrixSize(dt, int64(nrows), int64(nPerRow))
	if err != nil {
		return nil, preconditionf("dequantize: %v", err)
	}
	if uint64(len(src)) < size {
		return nil, preconditionf("dequantize: need %d bytes, have %d", size, len(src))
	}
	plain, err := UnrepackQ4_0(src[:size], nrows, nPerRow, r, width)
	if err != nil {
		return nil, err
	}
	return Dequantize(DTypeQ4_0, plain, nrows*nPerRow)
}

// DequantizeRows decodes nrows rows of nPerRow values whose starts are
// stride bytes apart. Interleaved layouts are always contiguous, so stride
// is ignored for them.
func DequantizeRows(dt DType, src []byte, stride, nrows, nPerRow int) ([]float32, error) {
	if dt.IsInterleaved() {
		return DequantizeMatrix(dt, src, nrows, nPerRow)
	}
	if nrows <= 0 {
		return nil, preconditionf("dequantize: %d rows", nrows)
	}
	row, err := RowSize(dt, int64(nPerRow))
	if err != nil {
		return nil, preconditionf("dequantize: %v", err)
	}
	if uint64(stride) < row && nrows > 1 {
		return nil, preconditionf("dequantize: stride %d shorter than row size %d", stride, row)
	}
	if need := uint64(stride)*uint64(nrows-1) + row; uint64(len(src)) < need {
		return nil, preconditionf("dequantize: need %d bytes, have %d", need, len(src))
	}
	out := make([]float32, nrows*nPerRow)
	for r := 0; r < nrows; r++ {
		DequantizeRow(dt, src[r*stride:], out[r*nPerRow:(r+1)*nPerRow])
	}
	return out, nil
}
