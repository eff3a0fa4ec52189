package api

// CreateTensorRequest quantizes a row-major f32 matrix. Type is any dtype
// name (f32, f16, q4_0, q8_0, q4_0_4x4, q4_0_4x8, q4_0_8x8).
type CreateTensorRequest struct {
	Type       string    `json:"type"`
	Rows       int       `json:"rows"`
	Cols       int       `json:"cols"`
	Data       []float32 `json:"data"`
	Importance []float32 `json:"importance,omitempty"`
}

type TensorInfo struct {
	ID        string `json:"id"`
	Object    string `json:"object"`
	Type      string `json:"type"`
	Rows      int    `json:"rows"`
	Cols      int    `json:"cols"`
	Bytes     int    `json:"bytes"`
	Weighted  bool   `json:"weighted"`
	CreatedAt int64  `json:"created_at"`
}

type DeleteTensorResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

type DequantizeResponse struct {
	ID   string    `json:"id"`
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float32 `json:"data"`
}

// MatMulRequest multiplies a stored tensor by Batch activation rows of
// Cols values each. RowLow/RowHigh select an output row range.
type MatMulRequest struct {
	TensorID    string    `json:"tensor_id"`
	Backend     string    `json:"backend,omitempty"`
	Batch       int       `json:"batch,omitempty"`
	Activations []float32 `json:"activations"`
	RowLow      *int64    `json:"row_low,omitempty"`
	RowHigh     *int64    `json:"row_high,omitempty"`
}

// MatMulResponse carries the product in column-major order: element (r, c)
// is Output[c*(RowHigh-RowLow) + r-RowLow].
type MatMulResponse struct {
	ID        string    `json:"id"`
	Object    string    `json:"object"`
	Backend   string    `json:"backend"`
	RowLow    int64     `json:"row_low"`
	RowHigh   int64     `json:"row_high"`
	Batch     int       `json:"batch"`
	Output    []float32 `json:"output"`
	ElapsedMS float64   `json:"elapsed_ms"`
}

// CastRequest runs the row-copy/cast kernel. From and To are f32 or f16;
// f16 inputs are given as floats and rounded to half precision first.
type CastRequest struct {
	From string    `json:"from"`
	To   string    `json:"to"`
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float32 `json:"data"`
}

type CastResponse struct {
	Kernel string    `json:"kernel"`
	Rows   int       `json:"rows"`
	Cols   int       `json:"cols"`
	Data   []float32 `json:"data"`
	Bits   []uint16  `json:"bits,omitempty"`
}

type BackendInfo struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Default   bool   `json:"default"`
}

type BackendsResponse struct {
	Object   string          `json:"object"`
	Data     []BackendInfo   `json:"data"`
	SIMDPath string          `json:"simd_path"`
	Features map[string]bool `json:"features"`
}

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
}
