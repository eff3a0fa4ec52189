// Package quant implements the block-quantized row encodings shared by every
// kernel backend: the Q4_0 and Q8_0 codecs, the interleaved Q4_0 weight
// layouts and their Q8_0x4 activation counterpart, and the importance
// weighted Q4_0 quantizer.
package quant

// Scheme quantizes a weight matrix into one encoding.
type Scheme interface {
	Name() string
	DType() DType
	Quantize(src []float32, nrows, nPerRow int, imatrix []float32) (QuantTensor, error)
}

// QuantTensor is a quantized matrix and the shape it was produced from.
type QuantTensor struct {
	DType    DType
	Rows     int
	PerRow   int
	Weighted bool
	Data     []byte
}

type scheme struct {
	dt DType
}

// SchemeFor returns the Scheme producing dt.
func SchemeFor(dt DType) (Scheme, error) {
	if _, ok := dtypeNames[dt]; !ok {
		return nil, ErrUnknownDType
	}
	return scheme{dt: dt}, nil
}

func (s scheme) Name() string { return s.dt.String() }
func (s scheme) DType() DType { return s.dt }

func (s scheme) Quantize(src []float32, nrows, nPerRow int, imatrix []float32) (QuantTensor, error) {
	data, err := QuantizeMatrix(s.dt, src, nrows, nPerRow, imatrix)
	if err != nil {
		return QuantTensor{}, err
	}
	weighted := imatrix != nil && (s.dt == DTypeQ4_0 || s.dt.IsInterleaved())
	return QuantTensor{
		DType:    s.dt,
		Rows:     nrows,
		PerRow:   nPerRow,
		Weighted: weighted,
		Data:     data,
	}, nil
}

// IsInterleaved reports whether d is one of the grouped Q4_0 layouts.
func (d DType) IsInterleaved() bool {
	r, _ := d.Interleave()
	return r > 1
}
