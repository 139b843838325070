package cam

import "mnist-cam/internal/model"

// FeatureCapture records the most recent output of the hooked layer. It is
// handed to the model's forward call explicitly and is not safe for
// concurrent forward passes.
type FeatureCapture struct {
	fm model.Tensor
}

// NewFeatureCapture returns a capture whose Current value is a zeroed map of
// the given shape until the first forward pass.
func NewFeatureCapture(channels, height, width int) *FeatureCapture {
	return &FeatureCapture{fm: model.NewTensor(channels, height, width)}
}

// OnForward implements model.ForwardObserver. The output is copied so that
// later forward passes cannot mutate it.
func (c *FeatureCapture) OnForward(out model.Tensor) {
	c.fm = out.Clone()
}

// Current returns the last captured feature map.
func (c *FeatureCapture) Current() model.Tensor {
	return c.fm
}
