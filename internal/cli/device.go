package cli

import (
	"fmt"
	"io"

	"github.com/roach88/fibdrv/internal/control"
	"github.com/roach88/fibdrv/internal/device"
	"github.com/roach88/fibdrv/internal/host"
	"github.com/roach88/fibdrv/internal/service"
)

// runtime is a started service on a private in-memory host.
type runtime struct {
	host *host.Memory
	svc  *service.Service
}

// startRuntime brings the device up with the configured name and render
// limit.
func startRuntime(opts *RootOptions) (*runtime, error) {
	cfg := opts.settings()
	mem := host.NewMemory()
	svc := service.New(mem, service.Options{
		Name:          cfg.Name,
		RenderLimit:   cfg.RenderLimit,
		Logger:        opts.logger(),
		DeviceOptions: opts.DeviceOptions,
	})
	if err := svc.Start(); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to start device", err)
	}
	return &runtime{host: mem, svc: svc}, nil
}

func (r *runtime) open() (host.File, error) {
	return r.host.Open(r.svc.Name())
}

func (r *runtime) listing() (string, error) {
	return r.host.ReadAttr(r.svc.Name(), control.AttrResult)
}

func (r *runtime) hint() (string, error) {
	return r.host.ReadAttr(r.svc.Name(), control.AttrReset)
}

func (r *runtime) reset(input string) (int, error) {
	return r.host.WriteAttr(r.svc.Name(), control.AttrReset, input)
}

func (r *runtime) stop() error {
	return r.svc.Stop()
}

// readAt seeks f to k and reads one value. It returns the clamped index.
func readAt(f host.File, k int64) (int64, int64, error) {
	pos, err := f.Seek(k, io.SeekStart)
	if err != nil {
		return 0, 0, fmt.Errorf("seek %d: %w", k, err)
	}
	buf := make([]byte, device.ValueSize)
	if _, err := f.Read(buf); err != nil {
		return pos, 0, fmt.Errorf("read %d: %w", pos, err)
	}
	v, err := device.DecodeValue(buf)
	if err != nil {
		return pos, 0, err
	}
	return pos, v, nil
}
