// Package imageio moves images between files and [N, 3, H, W] tensors.
//
// Pixels are scaled to [0, 1] on the way in and clamped to [0, 1] on the
// way out. PNG and JPEG are supported.
package imageio

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register decoder
	"image/png"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/image/draw"

	"github.com/born-ml/stylize/internal/tensor"
)

// ErrNoImages is returned when a directory holds no supported image.
var ErrNoImages = errors.New("imageio: no images")

// Load decodes the image at path into an *image.NRGBA.
func Load(path string) (*image.NRGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("imageio: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("imageio: decode %s: %w", path, err)
	}
	return NRGBA(img), nil
}

// SavePNG encodes img to path, creating parent directories.
func SavePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("imageio: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("imageio: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("imageio: encode %s: %w", path, err)
	}
	return f.Close()
}

// List returns the PNG and JPEG files of dir in lexical order.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("imageio: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoImages, dir)
	}
	slices.Sort(paths)
	return paths, nil
}

// ResizeShorter scales img so that its shorter side equals size, keeping the
// aspect ratio.
func ResizeShorter(img image.Image, size int) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= h {
		h = max(1, h*size/w)
		w = size
	} else {
		w = max(1, w*size/h)
		h = size
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Crop returns the size x size window whose top-left corner sits at the
// given fractions of the free space. (0.5, 0.5) is a center crop.
func Crop(img *image.NRGBA, size int, fx, fy float64) (*image.NRGBA, error) {
	b := img.Bounds()
	if b.Dx() < size || b.Dy() < size {
		return nil, fmt.Errorf("imageio: %dx%d image is smaller than crop %d", b.Dx(), b.Dy(), size)
	}
	x := b.Min.X + int(fx*float64(b.Dx()-size+1))
	y := b.Min.Y + int(fy*float64(b.Dy()-size+1))
	x = min(x, b.Max.X-size)
	y = min(y, b.Max.Y-size)
	return img.SubImage(image.Rect(x, y, x+size, y+size)).(*image.NRGBA), nil
}

// CropMultiple center crops img so that both sides are multiples of factor.
func CropMultiple(img *image.NRGBA, factor int) (*image.NRGBA, error) {
	b := img.Bounds()
	w, h := b.Dx()-b.Dx()%factor, b.Dy()-b.Dy()%factor
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("imageio: %dx%d image is smaller than %d", b.Dx(), b.Dy(), factor)
	}
	x, y := b.Min.X+(b.Dx()-w)/2, b.Min.Y+(b.Dy()-h)/2
	return img.SubImage(image.Rect(x, y, x+w, y+h)).(*image.NRGBA), nil
}

// Prepare resizes img to loadSize and crops a cropSize square.
func Prepare(img image.Image, loadSize, cropSize int, fx, fy float64) (*image.NRGBA, error) {
	return Crop(ResizeShorter(img, loadSize), cropSize, fx, fy)
}

// ToTensor stacks equally sized images into a [N, 3, H, W] tensor.
func ToTensor[B tensor.Backend](imgs []*image.NRGBA, backend B) (*tensor.Tensor[float32, B], error) {
	if len(imgs) == 0 {
		return nil, errors.New("imageio: empty batch")
	}
	bounds := imgs[0].Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	raw, err := tensor.NewRaw(tensor.Shape{len(imgs), 3, h, w}, tensor.Float32, backend.Device())
	if err != nil {
		return nil, fmt.Errorf("imageio: %w", err)
	}
	data := raw.AsFloat32()
	plane := h * w
	for n, img := range imgs {
		b := img.Bounds()
		if b.Dx() != w || b.Dy() != h {
			return nil, fmt.Errorf("imageio: image %d is %dx%d, want %dx%d", n, b.Dx(), b.Dy(), w, h)
		}
		base := n * 3 * plane
		for y := 0; y < h; y++ {
			row := img.PixOffset(b.Min.X, b.Min.Y+y)
			for x := 0; x < w; x++ {
				px := img.Pix[row+4*x : row+4*x+3]
				i := y*w + x
				data[base+i] = float32(px[0]) / 255
				data[base+plane+i] = float32(px[1]) / 255
				data[base+2*plane+i] = float32(px[2]) / 255
			}
		}
	}
	return tensor.New[float32, B](raw, backend), nil
}

// ToImages converts a float32 [N, 3, H, W] tensor into opaque images,
// clamping every value to [0, 1].
func ToImages(raw *tensor.RawTensor) ([]*image.NRGBA, error) {
	shape := raw.Shape()
	if raw.DType() != tensor.Float32 || len(shape) != 4 || shape[1] != 3 {
		return nil, fmt.Errorf("imageio: need float32 [N, 3, H, W], got %s %v", raw.DType(), shape)
	}
	n, h, w := shape[0], shape[2], shape[3]
	data := raw.AsFloat32()
	plane := h * w

	imgs := make([]*image.NRGBA, n)
	for k := 0; k < n; k++ {
		img := image.NewNRGBA(image.Rect(0, 0, w, h))
		base := k * 3 * plane
		for i := 0; i < plane; i++ {
			img.Pix[4*i] = toByte(data[base+i])
			img.Pix[4*i+1] = toByte(data[base+plane+i])
			img.Pix[4*i+2] = toByte(data[base+2*plane+i])
			img.Pix[4*i+3] = 255
		}
		imgs[k] = img
	}
	return imgs, nil
}

// Grid tiles images left to right into one strip.
func Grid(imgs []*image.NRGBA) *image.NRGBA {
	var w, h int
	for _, img := range imgs {
		w += img.Bounds().Dx()
		h = max(h, img.Bounds().Dy())
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	x := 0
	for _, img := range imgs {
		b := img.Bounds()
		draw.Draw(dst, image.Rect(x, 0, x+b.Dx(), b.Dy()), img, b.Min, draw.Src)
		x += b.Dx()
	}
	return dst
}

func toByte(v float32) uint8 {
	switch {
	case !(v > 0): // NaN included
		return 0
	case v >= 1:
		return 255
	}
	return uint8(v*255 + 0.5)
}

// NRGBA returns img as an *image.NRGBA with origin (0, 0), converting when
// needed.
func NRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
