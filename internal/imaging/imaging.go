package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/nfnt/resize"
)

// DefaultQuality is used when an Encoder carries no quality.
const DefaultQuality = 95

// Encoder writes frames as JPEG stills.
type Encoder struct {
	// Quality is the JPEG quality, 1-100.
	Quality int
	// MaxWidth downsizes wider frames, keeping the aspect ratio. Zero
	// keeps the source size.
	MaxWidth uint
}

// Encode renders img as JPEG.
func (e Encoder) Encode(img image.Image) ([]byte, error) {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, errors.New("image has no pixels")
	}

	if e.MaxWidth > 0 && uint(b.Dx()) > e.MaxWidth {
		// height 0 preserves the aspect ratio
		img = resize.Resize(e.MaxWidth, 0, img, resize.Bilinear)
	}

	quality := e.Quality
	if quality <= 0 {
		quality = DefaultQuality
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// WriteFile encodes img into path. The file appears complete or not at all.
func (e Encoder) WriteFile(path string, img image.Image) error {
	data, err := e.Encode(img)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
