//go:build cuda

package cuda

import (
	"unsafe"

	"github.com/x448/float16"

	"github.com/samcharles93/qkern/internal/backend/cuda/native"
)

// staged is a pinned host buffer paired with a device buffer of the same
// size. Both only grow.
type staged struct {
	host    native.HostBuffer
	dev     native.DeviceBuffer
	hostCap int64
	devCap  int64
}

func (s *staged) ensure(bytes int64) error {
	if bytes > s.hostCap {
		if err := s.host.Free(); err != nil {
			return err
		}
		buf, err := native.AllocHostPinned(bytes)
		if err != nil {
			s.host, s.hostCap = native.HostBuffer{}, 0
			return err
		}
		s.host, s.hostCap = buf, bytes
	}
	if bytes > s.devCap {
		if err := s.dev.Free(); err != nil {
			return err
		}
		buf, err := native.AllocDevice(bytes)
		if err != nil {
			s.dev, s.devCap = native.DeviceBuffer{}, 0
			return err
		}
		s.dev, s.devCap = buf, bytes
	}
	return nil
}

func (s *staged) free() error {
	var err error
	if e := s.dev.Free(); e != nil {
		err = e
	}
	if e := s.host.Free(); e != nil && err == nil {
		err = e
	}
	*s = staged{}
	return err
}

func (s *staged) f16(n int) []uint16 {
	return unsafe.Slice((*uint16)(s.host.Ptr()), n)
}

func (s *staged) f32(n int) []float32 {
	return unsafe.Slice((*float32)(s.host.Ptr()), n)
}

func (s *staged) upload(bytes int64, stream native.Stream) error {
	return native.MemcpyH2DAsync(s.dev, s.host.Ptr(), bytes, stream)
}

func (s *staged) download(bytes int64, stream native.Stream) error {
	return native.MemcpyD2HAsync(s.host.Ptr(), s.dev, bytes, stream)
}

// workspace holds the weight, activation and result buffers reused across
// calls on one backend.
type workspace struct {
	w, x, y staged
}

func (ws *workspace) close() error {
	var err error
	for _, s := range []*staged{&ws.w, &ws.x, &ws.y} {
		if e := s.free(); e != nil && err == nil {
			err = e
		}
	}
	return err
}

func fillF16(dst []uint16, src []float32) {
	for i, v := range src {
		dst[i] = float16.Fromfloat32(v).Bits()
	}
}
