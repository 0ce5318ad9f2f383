// Package preprocess turns encoded images into normalised FaceNet input tensors.
package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/Brownie44l1/facenet-api/internal/model"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Pixel values are mapped from [0, 255] to [-1, 1] with (p - mean) / scale.
const (
	pixelMean  = 127.5
	pixelScale = 127.5
)

// Layout is the memory order of the produced tensor.
type Layout string

const (
	// NHWC yields [1, size, size, 3] with interleaved channels.
	NHWC Layout = "nhwc"
	// NCHW yields [1, 3, size, size] with planar channels.
	NCHW Layout = "nchw"
)

// ParseLayout maps a config string to a Layout.
func ParseLayout(s string) (Layout, error) {
	switch Layout(strings.ToLower(s)) {
	case NHWC, "":
		return NHWC, nil
	case NCHW:
		return NCHW, nil
	}
	return "", fmt.Errorf("unknown tensor layout %q", s)
}

// DecodeError reports bytes that are not a decodable image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot identify image file: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Options configures a Preprocessor.
type Options struct {
	Size   int
	Layout Layout
}

// Preprocessor is stateless and safe for concurrent use.
type Preprocessor struct {
	size   int
	layout Layout
}

// New returns a Preprocessor, filling zero options with FaceNet defaults.
func New(opts Options) *Preprocessor {
	if opts.Size <= 0 {
		opts.Size = 160
	}
	if opts.Layout == "" {
		opts.Layout = NHWC
	}
	return &Preprocessor{size: opts.Size, layout: opts.Layout}
}

// Shape returns the tensor shape Tensor produces.
func (p *Preprocessor) Shape() []int64 {
	s := int64(p.size)
	if p.layout == NCHW {
		return []int64{1, 3, s, s}
	}
	return []int64{1, s, s, 3}
}

// Preprocess decodes data and converts it to a model tensor.
func (p *Preprocessor) Preprocess(data []byte) (*model.Tensor, error) {
	img, err := p.Decode(data)
	if err != nil {
		return nil, err
	}
	return p.Tensor(img), nil
}

// Decode parses any registered raster format.
func (p *Preprocessor) Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Err: errors.New("empty image data")}
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return img, nil
}

// Tensor resizes img to size×size and normalises it into a float32 tensor.
func (p *Preprocessor) Tensor(img image.Image) *model.Tensor {
	size := p.size
	resized := resize.Resize(uint(size), uint(size), img, resize.Bicubic)
	bounds := resized.Bounds()

	plane := size * size
	data := make([]float32, 3*plane)

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, b := rgb8(resized.At(bounds.Min.X+x, bounds.Min.Y+y))

			pixelIndex := y*size + x
			switch p.layout {
			case NCHW:
				data[pixelIndex] = normalize(r)
				data[plane+pixelIndex] = normalize(g)
				data[2*plane+pixelIndex] = normalize(b)
			default:
				data[3*pixelIndex] = normalize(r)
				data[3*pixelIndex+1] = normalize(g)
				data[3*pixelIndex+2] = normalize(b)
			}
		}
	}

	return &model.Tensor{Shape: p.Shape(), Data: data}
}

// rgb8 converts any color to 8-bit RGB, dropping alpha the way a plain RGB
// conversion does: channels are un-premultiplied before alpha is discarded.
func rgb8(c color.Color) (uint8, uint8, uint8) {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return n.R, n.G, n.B
}

func normalize(v uint8) float32 {
	return (float32(v) - pixelMean) / pixelScale
}
