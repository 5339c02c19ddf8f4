package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"

	"github.com/keagan/kitchencam/internal/imaging"
)

// simulatedStreamHeader starts every placeholder recording.
const simulatedStreamHeader = "kitchencam simulated h264 stream\n"

// Simulated is a camera without hardware. Recordings are placeholder files
// and stills are generated test patterns.
type Simulated struct {
	Width   int
	Height  int
	Encoder imaging.Encoder
}

func (s *Simulated) Name() string {
	return "simulated"
}

func (s *Simulated) Open(ctx context.Context) (Camera, error) {
	w, h := s.Width, s.Height
	if w <= 0 || h <= 0 {
		w, h = 320, 240
	}
	return &simulatedCamera{width: w, height: h, encoder: s.Encoder}, nil
}

type simulatedCamera struct {
	width, height int
	encoder       imaging.Encoder
	frameRate     float64
	bitrate       int

	recording *os.File
	frames    int
	closed    bool
}

func (c *simulatedCamera) Configure(frameRate float64, bitrate int) error {
	if frameRate <= 0 {
		return fmt.Errorf("invalid frame rate %v", frameRate)
	}
	c.frameRate = frameRate
	c.bitrate = bitrate
	return nil
}

func (c *simulatedCamera) StartRecording(ctx context.Context, path string) error {
	if c.closed {
		return errors.New("camera is closed")
	}
	if c.recording != nil {
		return errors.New("already recording")
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(simulatedStreamHeader); err != nil {
		f.Close()
		return err
	}
	c.recording = f
	return nil
}

func (c *simulatedCamera) CaptureStill(ctx context.Context, path string) error {
	if c.closed {
		return errors.New("camera is closed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.frames++
	if c.recording != nil {
		if _, err := fmt.Fprintf(c.recording, "frame %d\n", c.frames); err != nil {
			return err
		}
	}
	return c.encoder.WriteFile(path, pattern(c.width, c.height, c.frames))
}

func (c *simulatedCamera) StopRecording() error {
	if c.recording == nil {
		return ErrNotRecording
	}
	f := c.recording
	c.recording = nil
	return f.Close()
}

func (c *simulatedCamera) Close() error {
	c.closed = true
	if c.recording != nil {
		return c.StopRecording()
	}
	return nil
}

// pattern draws a gradient that shifts with the frame number.
func pattern(w, h, frame int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	shift := uint8(frame * 8)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(x*255/w) + shift,
				G: uint8(y*255/h) + shift,
				B: shift,
				A: 255,
			})
		}
	}
	return img
}
