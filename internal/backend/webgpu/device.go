//go:build webgpu

package webgpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/openfluke/webgpu/wgpu"
)

var errNoAdapter = errors.New("webgpu: no adapter available")

// device is the process-wide WebGPU device. Adapters are requested once and
// shared by every Backend.
type device struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	dev      *wgpu.Device
	queue    *wgpu.Queue
	name     string
	vendor   string
}

var (
	shared     device
	sharedOnce sync.Once
	sharedErr  error
)

func acquire() (*device, error) {
	sharedOnce.Do(func() {
		sharedErr = shared.open()
	})
	if sharedErr != nil {
		return nil, sharedErr
	}
	return &shared, nil
}

func (d *device) open() error {
	d.instance = wgpu.CreateInstance(nil)
	if d.instance == nil {
		return fmt.Errorf("webgpu: create instance failed")
	}
	prefs := []*wgpu.RequestAdapterOptions{
		{PowerPreference: wgpu.PowerPreferenceHighPerformance},
		{PowerPreference: wgpu.PowerPreferenceLowPower},
		nil,
	}
	var lastErr error
	for _, opts := range prefs {
		a, err := d.instance.RequestAdapter(opts)
		if err == nil && a != nil {
			d.adapter = a
			break
		}
		lastErr = err
	}
	if d.adapter == nil {
		if lastErr != nil {
			return fmt.Errorf("%w: %v", errNoAdapter, lastErr)
		}
		return errNoAdapter
	}
	info := d.adapter.GetInfo()
	d.name, d.vendor = info.Name, info.VendorName

	dev, err := d.adapter.RequestDevice(nil)
	if err != nil {
		return fmt.Errorf("webgpu: request device: %w", err)
	}
	d.dev = dev
	d.queue = dev.GetQueue()
	if d.queue == nil {
		return fmt.Errorf("webgpu: device has no queue")
	}
	return nil
}
