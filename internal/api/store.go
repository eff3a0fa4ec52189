package api

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/qkern/pkg/quant"
)

type tensorRecord struct {
	ID        string
	Tensor    quant.QuantTensor
	CreatedAt time.Time
}

func (r *tensorRecord) info() TensorInfo {
	return TensorInfo{
		ID:        r.ID,
		Object:    "tensor",
		Type:      r.Tensor.DType.String(),
		Rows:      r.Tensor.Rows,
		Cols:      r.Tensor.PerRow,
		Bytes:     len(r.Tensor.Data),
		Weighted:  r.Tensor.Weighted,
		CreatedAt: r.CreatedAt.Unix(),
	}
}

// TensorStore keeps quantized tensors in memory. Records are immutable once
// stored, so readers share the returned pointer without copying.
type TensorStore struct {
	mu      sync.RWMutex
	tensors map[string]*tensorRecord
}

func NewTensorStore() *TensorStore {
	return &TensorStore{tensors: make(map[string]*tensorRecord)}
}

func (s *TensorStore) Put(t quant.QuantTensor, now time.Time) *tensorRecord {
	rec := &tensorRecord{ID: newTensorID(), Tensor: t, CreatedAt: now}
	s.mu.Lock()
	s.tensors[rec.ID] = rec
	s.mu.Unlock()
	return rec
}

func (s *TensorStore) Get(id string) (*tensorRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.tensors[id]
	return rec, ok
}

func (s *TensorStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tensors[id]; !ok {
		return false
	}
	delete(s.tensors, id)
	return true
}

func (s *TensorStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tensors)
}

func newTensorID() string {
	return "tensor_" + uuid.NewString()
}

func newMatMulID() string {
	return "mm_" + uuid.NewString()
}
