package preprocess

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func solid(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: uint8((x + y) % 256), A: 255})
		}
	}
	return img
}

func TestPreprocess_ShapeAndRange(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 37, 91))
	for i := range gray.Pix {
		gray.Pix[i] = uint8(i % 256)
	}

	var jpg bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, gradient(640, 480), nil))

	var bm bytes.Buffer
	require.NoError(t, bmp.Encode(&bm, gradient(20, 20)))

	inputs := map[string][]byte{
		"red square png":    encodePNG(t, solid(160, 160, color.NRGBA{R: 255, A: 255})),
		"wide gradient png": encodePNG(t, gradient(300, 120)),
		"tiny png":          encodePNG(t, solid(1, 1, color.NRGBA{R: 10, G: 20, B: 30, A: 255})),
		"grayscale png":     encodePNG(t, gray),
		"translucent png":   encodePNG(t, solid(64, 64, color.NRGBA{R: 200, G: 100, B: 50, A: 128})),
		"jpeg":              jpg.Bytes(),
		"bmp":               bm.Bytes(),
	}

	p := New(Options{})

	for name, data := range inputs {
		t.Run(name, func(t *testing.T) {
			tensor, err := p.Preprocess(data)
			require.NoError(t, err)

			assert.Equal(t, []int64{1, 160, 160, 3}, tensor.Shape)
			require.Len(t, tensor.Data, 160*160*3)
			for i, v := range tensor.Data {
				if v < -1 || v > 1 {
					t.Fatalf("value %d = %f outside [-1, 1]", i, v)
				}
			}
		})
	}
}

func TestPreprocess_RedSquareValues(t *testing.T) {
	p := New(Options{Size: 160, Layout: NHWC})

	tensor, err := p.Preprocess(encodePNG(t, solid(160, 160, color.NRGBA{R: 255, A: 255})))
	require.NoError(t, err)

	for i := 0; i < len(tensor.Data); i += 3 {
		require.Equal(t, float32(1), tensor.Data[i], "red channel at %d", i)
		require.Equal(t, float32(-1), tensor.Data[i+1], "green channel at %d", i)
		require.Equal(t, float32(-1), tensor.Data[i+2], "blue channel at %d", i)
	}
}

func TestPreprocess_AlphaDiscarded(t *testing.T) {
	p := New(Options{Size: 8})

	tensor, err := p.Preprocess(encodePNG(t, solid(8, 8, color.NRGBA{R: 255, G: 0, B: 255, A: 128})))
	require.NoError(t, err)

	assert.Equal(t, float32(1), tensor.Data[0])
	assert.Equal(t, float32(-1), tensor.Data[1])
	assert.Equal(t, float32(1), tensor.Data[2])
}

func TestPreprocess_GrayscaleExpanded(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range gray.Pix {
		gray.Pix[i] = 51
	}

	p := New(Options{Size: 4})
	tensor, err := p.Preprocess(encodePNG(t, gray))
	require.NoError(t, err)

	want := (float32(51) - 127.5) / 127.5
	for i := 0; i < len(tensor.Data); i += 3 {
		assert.InDelta(t, want, tensor.Data[i], 1e-6)
		assert.Equal(t, tensor.Data[i], tensor.Data[i+1])
		assert.Equal(t, tensor.Data[i], tensor.Data[i+2])
	}
}

func TestPreprocess_NCHW(t *testing.T) {
	p := New(Options{Size: 10, Layout: NCHW})
	assert.Equal(t, []int64{1, 3, 10, 10}, p.Shape())

	tensor, err := p.Preprocess(encodePNG(t, solid(30, 30, color.NRGBA{R: 255, G: 0, B: 255, A: 255})))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 10, 10}, tensor.Shape)

	plane := 100
	for i := 0; i < plane; i++ {
		assert.Equal(t, float32(1), tensor.Data[i])
		assert.Equal(t, float32(-1), tensor.Data[plane+i])
		assert.Equal(t, float32(1), tensor.Data[2*plane+i])
	}
}

func TestPreprocess_Deterministic(t *testing.T) {
	p := New(Options{})
	data := encodePNG(t, gradient(200, 250))

	first, err := p.Preprocess(data)
	require.NoError(t, err)
	second, err := p.Preprocess(data)
	require.NoError(t, err)

	assert.Equal(t, first.Data, second.Data)
}

func TestPreprocess_DecodeError(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"nil", nil},
		{"empty", []byte{}},
		{"text", []byte("definitely not an image")},
		{"truncated png", encodePNG(t, solid(16, 16, color.White))[:20]},
	}

	p := New(Options{})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tensor, err := p.Preprocess(tt.data)
			require.Error(t, err)
			assert.Nil(t, tensor)

			var decodeErr *DecodeError
			assert.True(t, errors.As(err, &decodeErr))
			assert.NotEmpty(t, err.Error())
		})
	}
}

func TestParseLayout(t *testing.T) {
	tests := []struct {
		in      string
		want    Layout
		wantErr bool
	}{
		{"", NHWC, false},
		{"nhwc", NHWC, false},
		{"NCHW", NCHW, false},
		{"chw", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLayout(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
