// Package imaging validates uploaded pictures and shrinks them to a size the
// hosted vision models accept.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	xdraw "golang.org/x/image/draw"

	"github.com/satriahrh/aidoctor/domain"
	"github.com/satriahrh/aidoctor/domain/entities"
)

// Config bounds the processed image
type Config struct {
	MaxWidth  int
	MaxHeight int
	Quality   int // JPEG quality (1-100)
}

// DefaultConfig returns default limits
func DefaultConfig() Config {
	return Config{MaxWidth: 2048, MaxHeight: 2048, Quality: 85}
}

// Processor validates and downsizes uploaded images
type Processor struct {
	cfg Config
}

// NewProcessor creates a processor, filling unset limits from DefaultConfig
func NewProcessor(cfg Config) *Processor {
	def := DefaultConfig()
	if cfg.MaxWidth <= 0 {
		cfg.MaxWidth = def.MaxWidth
	}
	if cfg.MaxHeight <= 0 {
		cfg.MaxHeight = def.MaxHeight
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = def.Quality
	}
	return &Processor{cfg: cfg}
}

// Process accepts JPEG and PNG only. Images within the limits are returned
// unchanged; larger ones are scaled down keeping the aspect ratio.
func (p *Processor) Process(data []byte) (*entities.Image, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnsupportedMedia, err)
	}

	mimeType, err := mimeTypeOf(format)
	if err != nil {
		return nil, err
	}

	if cfg.Width <= p.cfg.MaxWidth && cfg.Height <= p.cfg.MaxHeight {
		return &entities.Image{Data: data, MIMEType: mimeType}, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnsupportedMedia, err)
	}
	resized := p.resize(img)

	var buf bytes.Buffer
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, resized, &jpeg.Options{Quality: p.cfg.Quality})
	default:
		err = png.Encode(&buf, resized)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return &entities.Image{Data: buf.Bytes(), MIMEType: mimeType}, nil
}

func (p *Processor) resize(img image.Image) image.Image {
	bounds := img.Bounds()
	ratio := float64(bounds.Dx()) / float64(bounds.Dy())

	newWidth := p.cfg.MaxWidth
	newHeight := int(float64(newWidth) / ratio)
	if newHeight > p.cfg.MaxHeight {
		newHeight = p.cfg.MaxHeight
		newWidth = int(float64(newHeight) * ratio)
	}
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)
	return dst
}

func mimeTypeOf(format string) (string, error) {
	switch format {
	case "jpeg":
		return "image/jpeg", nil
	case "png":
		return "image/png", nil
	default:
		return "", fmt.Errorf("%w: %s images are not accepted, upload a JPG or PNG", domain.ErrUnsupportedMedia, format)
	}
}
