// Package thumbnail derives small preview images from primary assets.
package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Deriver produces a preview image no larger than size x size.
type Deriver interface {
	Derive(ctx context.Context, assetPath string, size int) (image.Image, error)
}

// DeriverFunc adapts a function to Deriver.
type DeriverFunc func(ctx context.Context, assetPath string, size int) (image.Image, error)

func (f DeriverFunc) Derive(ctx context.Context, assetPath string, size int) (image.Image, error) {
	return f(ctx, assetPath, size)
}

// Chain tries each deriver in order and returns the first image produced.
type Chain []Deriver

func (c Chain) Derive(ctx context.Context, assetPath string, size int) (image.Image, error) {
	if len(c) == 0 {
		return nil, errors.New("no thumbnail derivers configured")
	}
	var errs []error
	for _, d := range c {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := d.Derive(ctx, assetPath, size)
		if err == nil {
			return img, nil
		}
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}

// Fit scales img down to fit within size x size. Smaller images are
// returned unchanged.
func Fit(img image.Image, size int) image.Image {
	b := img.Bounds()
	if size <= 0 || (b.Dx() <= size && b.Dy() <= size) {
		return img
	}
	return imaging.Fit(img, size, size, imaging.Lanczos)
}

// EncodeJPEG encodes img as JPEG. quality is 1..100.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("jpeg quality out of range: %d", quality)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
