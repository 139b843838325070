package model

// Batch represents a minibatch of features and labels.
type Batch struct {
	Inputs [][]float64
	Labels []int
}

// Model defines the minimal training functionality required by the trainer.
type Model interface {
	TrainStep(batch Batch) float64
	Evaluate(batch Batch) (lossSum float64, correct int)
}

// Tensor is a dense channel-major [C][H][W] activation.
type Tensor struct {
	C, H, W int
	Data    []float64
}

// NewTensor allocates a zeroed tensor.
func NewTensor(c, h, w int) Tensor {
	return Tensor{C: c, H: h, W: w, Data: make([]float64, c*h*w)}
}

// Clone returns a deep copy that shares no memory with t.
func (t Tensor) Clone() Tensor {
	out := Tensor{C: t.C, H: t.H, W: t.W, Data: make([]float64, len(t.Data))}
	copy(out.Data, t.Data)
	return out
}

// At returns the value at channel c, row y, column x.
func (t Tensor) At(c, y, x int) float64 {
	return t.Data[(c*t.H+y)*t.W+x]
}

// ForwardObserver is notified with the output of the hooked convolution
// stage on every forward pass. The tensor is only valid for the duration of
// the call; observers that keep it must copy it.
type ForwardObserver interface {
	OnForward(out Tensor)
}

// Param is a named, live view of one parameter tensor.
type Param struct {
	Name  string
	Shape []int
	Data  []float64
}
