package cam

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"mnist-cam/internal/model"
)

// ParameterSource exposes a model's parameter tensors in declaration order.
type ParameterSource interface {
	Parameters() []model.Param
}

// ExtractWeights copies the second-to-last parameter tensor, the linear
// head's weights, into a [numClasses, channels] matrix detached from the
// model.
func ExtractWeights(src ParameterSource, numClasses, channels int) (*mat.Dense, error) {
	params := src.Parameters()
	if len(params) < 2 {
		return nil, errors.Wrapf(ErrShapeMismatch, "model has %d parameter tensors, need at least 2", len(params))
	}
	p := params[len(params)-2]
	if len(p.Shape) != 2 || p.Shape[0] != numClasses || p.Shape[1] != channels || len(p.Data) != numClasses*channels {
		return nil, errors.Wrapf(ErrShapeMismatch, "%s has shape %v, want [%d %d]", p.Name, p.Shape, numClasses, channels)
	}
	data := make([]float64, len(p.Data))
	copy(data, p.Data)
	return mat.NewDense(numClasses, channels, data), nil
}
