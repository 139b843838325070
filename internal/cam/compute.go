package cam

import (
	"image"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"mnist-cam/internal/model"
)

// ClassPolicy selects which weight row is used for a sample.
type ClassPolicy int

const (
	// ClassBySample uses the row equal to the sample index. Sample i is
	// expected to be an image of digit i.
	ClassBySample ClassPolicy = iota
	// ClassByPrediction uses the row of the model's predicted class.
	ClassByPrediction
)

// Row returns the weight row for sample given the model's probabilities.
func (p ClassPolicy) Row(sample int, probs []float64) int {
	if p == ClassByPrediction {
		return model.Argmax(probs)
	}
	return sample
}

func (p ClassPolicy) String() string {
	if p == ClassByPrediction {
		return "prediction"
	}
	return "sample"
}

// Compute returns the raw [H, W] activation map for weight row `row`:
// w[row] x reshape(fm, [C, H*W]).
func Compute(fm model.Tensor, w *mat.Dense, row int) (*mat.Dense, error) {
	rows, cols := w.Dims()
	if cols != fm.C {
		return nil, errors.Wrapf(ErrShapeMismatch, "weights have %d channels, feature map has %d", cols, fm.C)
	}
	if row < 0 || row >= rows {
		return nil, errors.Wrapf(ErrShapeMismatch, "row %d outside [0, %d)", row, rows)
	}
	area := fm.H * fm.W
	if area == 0 || len(fm.Data) != fm.C*area {
		return nil, errors.Wrapf(ErrShapeMismatch, "feature map %dx%dx%d holds %d values", fm.C, fm.H, fm.W, len(fm.Data))
	}

	feat := mat.NewDense(fm.C, area, fm.Data)
	var flat mat.Dense
	flat.Mul(w.Slice(row, row+1, 0, cols), feat)
	return mat.NewDense(fm.H, fm.W, flat.RawMatrix().Data), nil
}

// Normalize maps raw to 8-bit intensities: subtract the minimum, divide by
// the remaining maximum, scale by 255 and truncate. Non-finite entries are
// treated as 0. When the map is constant there is no range to normalize;
// the result is all zeros and ok is false.
func Normalize(raw mat.Matrix) (img *image.Gray, ok bool) {
	h, w := raw.Dims()
	img = image.NewGray(image.Rect(0, 0, w, h))
	if h == 0 || w == 0 {
		return img, false
	}
	vals := make([]float64, 0, h*w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := raw.At(y, x)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = 0
			}
			vals = append(vals, v)
		}
	}
	lo := floats.Min(vals)
	// A span wider than MaxFloat64 is measured in halves; the ratio v/hi
	// is unchanged.
	scale := 1.0
	if math.IsInf(floats.Max(vals)-lo, 0) {
		scale = 0.5
	}
	for i, v := range vals {
		vals[i] = v*scale - lo*scale
	}
	hi := floats.Max(vals)
	if !(hi > 0) {
		return img, false
	}
	for i, v := range vals {
		img.Pix[(i/w)*img.Stride+i%w] = uint8(v / hi * 255)
	}
	return img, true
}
