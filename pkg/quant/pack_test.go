package quant

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func quantizeRows(t *testing.T, nrows, nPerRow int) ([]float32, []byte) {
	t.Helper()
	src := makeValues(nrows*nPerRow, 1.25)
	buf, err := QuantizeMatrix(DTypeQ4_0, src, nrows, nPerRow, nil)
	if err != nil {
		t.Fatalf("QuantizeMatrix: %v", err)
	}
	return src, buf
}

func TestRepackQ4_0IsInvertible(t *testing.T) {
	layouts := []struct{ r, width int }{{4, 4}, {4, 8}, {8, 8}}
	for _, l := range layouts {
		_, plain := quantizeRows(t, 16, 96)

		packed, err := RepackQ4_0(plain, 16, 96, l.r, l.width)
		if err != nil {
			t.Fatalf("%dx%d repack: %v", l.r, l.width, err)
		}
		if len(packed) != len(plain) {
			t.Fatalf("%dx%d: packed %d bytes, plain %d", l.r, l.width, len(packed), len(plain))
		}
		back, err := UnrepackQ4_0(packed, 16, 96, l.r, l.width)
		if err != nil {
			t.Fatalf("%dx%d unrepack: %v", l.r, l.width, err)
		}
		if diff := cmp.Diff(plain, back); diff != "" {
			t.Fatalf("%dx%d round trip mismatch (-want +got):\n%s", l.r, l.width, diff)
		}
	}
}

func TestPackQ4_0Layout(t *testing.T) {
	rows := make([][]byte, 4)
	for i := range rows {
		rows[i] = make([]byte, BlockQ4_0Size)
		putScale(rows[i], float32(i+1))
		for j := 0; j < QK/2; j++ {
			rows[i][2+j] = byte(i<<4 | j&0x0F)
		}
	}
	dst := make([]byte, BlockQ4_0x4Size)
	PackQ4_0(dst, rows, 4)

	for i := 0; i < 4; i++ {
		if got := scaleAt(dst[2*i:]); got != float32(i+1) {
			t.Fatalf("scale %d: got %v want %v", i, got, i+1)
		}
	}
	qs := dst[8:]
	// Bytes 0..3 come from row 0 bytes 0..3, bytes 4..7 from row 1, and the
	// second chunk restarts at row 0 byte 4.
	checks := []struct{ idx, row, off int }{
		{0, 0, 0}, {3, 0, 3}, {4, 1, 0}, {12, 3, 0}, {16, 0, 4}, {63, 3, 15},
	}
	for _, c := range checks {
		want := rows[c.row][2+c.off] ^ nibbleBias
		if qs[c.idx] != want {
			t.Fatalf("qs[%d]: got %#x want row %d byte %d (%#x)", c.idx, qs[c.idx], c.row, c.off, want)
		}
	}
}

func TestRepackRejectsPartialGroups(t *testing.T) {
	_, plain := quantizeRows(t, 6, 32)
	_, err := RepackQ4_0(plain, 6, 32, 4, 4)
	if !errors.Is(err, ErrPrecondition) {
		t.Fatalf("expected ErrPrecondition, got %v", err)
	}
	if _, err := RepackQ4_0(plain, 6, 32, 3, 4); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("expected ErrPrecondition for 3-row groups, got %v", err)
	}
}

func TestQuantizeQ8_0x4MatchesPackedRows(t *testing.T) {
	const k = 64
	x := makeValues(4*k, 2.5)
	for _, width := range []int{4, 8} {
		direct := make([]byte, k/QK*BlockQ8_0x4Size)
		QuantizeQ8_0x4(x, direct, k, width)

		plain := make([]byte, 4*k/QK*BlockQ8_0Size)
		for r := 0; r < 4; r++ {
			QuantizeRowQ8_0(x[r*k:(r+1)*k], plain[r*k/QK*BlockQ8_0Size:])
		}
		packed := make([]byte, len(direct))
		PackRowsQ8_0x4(packed, plain, 4, k, k/QK*BlockQ8_0Size, width)

		if diff := cmp.Diff(direct, packed); diff != "" {
			t.Fatalf("width %d: packed rows differ from direct quantization (-want +got):\n%s", width, diff)
		}
	}
}

func TestPackQ8_0x4IsInvertible(t *testing.T) {
	x := makeValues(4*QK, 0.1)
	rows := make([][]byte, 4)
	for r := range rows {
		rows[r] = make([]byte, BlockQ8_0Size)
		QuantizeRowQ8_0(x[r*QK:(r+1)*QK], rows[r])
	}
	packed := make([]byte, BlockQ8_0x4Size)
	PackQ8_0x4(packed, rows, 8)

	back := make([][]byte, 4)
	for r := range back {
		back[r] = make([]byte, BlockQ8_0Size)
	}
	UnpackQ8_0x4(packed, back, 8)
	if diff := cmp.Diff(rows, back); diff != "" {
		t.Fatalf("unpack mismatch (-want +got):\n%s", diff)
	}
}

func TestQuantizeMatQ8_0Groups(t *testing.T) {
	const k = 32
	x := makeValues(8*k, 3)
	dst := make([]byte, 2*BlockQ8_0x4Size)
	QuantizeMatQ8_0(x, dst, 8, k, 4)

	second := make([]byte, BlockQ8_0x4Size)
	QuantizeQ8_0x4(x[4*k:], second, k, 4)
	if diff := cmp.Diff(second, dst[BlockQ8_0x4Size:]); diff != "" {
		t.Fatalf("second group mismatch (-want +got):\n%s", diff)
	}
}

func TestDequantizeMatrixUnpacksGroups(t *testing.T) {
	_, plain := quantizeRows(t, 8, 64)
	want, err := Dequantize(DTypeQ4_0, plain, 8*64)
	if err != nil {
		t.Fatalf("Dequantize: %v", err)
	}
	packed, err := RepackQ4_0(plain, 8, 64, 8, 8)
	if err != nil {
		t.Fatalf("RepackQ4_0: %v", err)
	}
	got, err := DequantizeMatrix(DTypeQ4_0x8x8, packed, 8, 64)
	if err != nil {
		t.Fatalf("DequantizeMatrix: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("dequantized values differ (-want +got):\n%s", diff)
	}
	if _, err := DequantizeMatrix(DTypeQ4_0x8x8, packed[:100], 8, 64); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("expected ErrPrecondition for short input, got %v", err)
	}
}

func TestDequantizeRowsHonoursStride(t *testing.T) {
	_, plain := quantizeRows(t, 3, 64)
	want, err := Dequantize(DTypeQ4_0, plain, 3*64)
	if err != nil {
		t.Fatalf("Dequantize: %v", err)
	}
	// Spread the rows out with 10 bytes of padding between them.
	const rowBytes, stride = 2 * BlockQ4_0Size, 2*BlockQ4_0Size + 10
	strided := make([]byte, 2*stride+rowBytes)
	for r := 0; r < 3; r++ {
		copy(strided[r*stride:], plain[r*rowBytes:(r+1)*rowBytes])
	}
	got, err := DequantizeRows(DTypeQ4_0, strided, stride, 3, 64)
	if err != nil {
		t.Fatalf("DequantizeRows: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("strided rows differ (-want +got):\n%s", diff)
	}

	packed, err := RepackQ4_0(append(plain, plain[:rowBytes]...), 4, 64, 4, 4)
	if err != nil {
		t.Fatalf("RepackQ4_0: %v", err)
	}
	grouped, err := DequantizeRows(DTypeQ4_0x4x4, packed, 0, 4, 64)
	if err != nil {
		t.Fatalf("DequantizeRows interleaved: %v", err)
	}
	if diff := cmp.Diff(want, grouped[:3*64]); diff != "" {
		t.Fatalf("interleaved rows differ (-want +got):\n%s", diff)
	}

	if _, err := DequantizeRows(DTypeQ4_0, strided[:len(strided)-1], stride, 3, 64); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("expected ErrPrecondition for short input, got %v", err)
	}
	if _, err := DequantizeRows(DTypeQ4_0, strided, rowBytes-1, 3, 64); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("expected ErrPrecondition for overlapping stride, got %v", err)
	}
}
