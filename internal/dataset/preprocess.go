package dataset

import (
	"image"

	"golang.org/x/image/draw"
)

// MNIST normalization constants shared by training and visualization.
const (
	Mean = 0.1307
	Std  = 0.3081

	ImageSize = 28
)

// NormalizePixel maps an 8-bit intensity to the normalized model input.
func NormalizePixel(v uint8) float64 {
	return (float64(v)/255 - Mean) / Std
}

// NormalizeBytes converts a raw ImageSize*ImageSize grayscale buffer.
func NormalizeBytes(raw []byte) []float64 {
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = NormalizePixel(v)
	}
	return out
}

// Grayscale converts img to an ImageSize x ImageSize gray image, resizing
// with bilinear interpolation when the bounds differ.
func Grayscale(img image.Image) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, ImageSize, ImageSize))
	b := img.Bounds()
	if b.Dx() == ImageSize && b.Dy() == ImageSize {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst
	}
	draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Preprocess turns a decoded image into a normalized model input.
func Preprocess(img image.Image) []float64 {
	return NormalizeBytes(Grayscale(img).Pix)
}
