package camera

import (
	"context"
	"errors"
	"sync"
)

// ErrBusy is returned by Device.Open while another handle is live.
var ErrBusy = errors.New("camera is already open")

// ErrNotRecording is returned by StopRecording without a recording.
var ErrNotRecording = errors.New("camera is not recording")

// Camera is an open camera handle. It is used from one goroutine.
type Camera interface {
	Configure(frameRate float64, bitrate int) error
	StartRecording(ctx context.Context, path string) error
	// CaptureStill writes one JPEG to path. While recording it reuses the
	// recording stream.
	CaptureStill(ctx context.Context, path string) error
	StopRecording() error
	Close() error
}

// Opener hands out camera handles.
type Opener interface {
	Open(ctx context.Context) (Camera, error)
}

// Backend opens the underlying hardware.
type Backend interface {
	Open(ctx context.Context) (Camera, error)
	Name() string
}

// Device guards a backend so at most one handle is open at a time.
type Device struct {
	backend Backend

	mu   sync.Mutex
	open bool
}

// NewDevice wraps backend.
func NewDevice(backend Backend) *Device {
	return &Device{backend: backend}
}

// Name identifies the backend in logs.
func (d *Device) Name() string {
	return d.backend.Name()
}

// Open returns a handle, or ErrBusy if one is already open. Closing the
// handle releases the device.
func (d *Device) Open(ctx context.Context) (Camera, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.open {
		return nil, ErrBusy
	}
	cam, err := d.backend.Open(ctx)
	if err != nil {
		return nil, err
	}
	d.open = true
	return &handle{Camera: cam, device: d}, nil
}

func (d *Device) release() {
	d.mu.Lock()
	d.open = false
	d.mu.Unlock()
}

type handle struct {
	Camera
	device *Device
	once   sync.Once
}

func (h *handle) Close() error {
	var err error
	h.once.Do(func() {
		err = h.Camera.Close()
		h.device.release()
	})
	return err
}
