package model

import (
	"fmt"
	"math"
	"math/rand"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Architecture constants. conv2 is the hooked stage: its output is
// [FeatureChannels, FeatureSize, FeatureSize].
const (
	InputSize       = 28
	InputLen        = InputSize * InputSize
	NumClasses      = 10
	FeatureChannels = 16
	FeatureSize     = 8

	conv1Channels = 6
	kernelSize    = 5
)

// Options configures a LeNet.
type Options struct {
	LR       float64
	Momentum float64
	Seed     int64
	// Workers bounds the goroutines used per batch. Values < 1 mean 1.
	Workers int
}

// LeNet is a small digit classifier:
//
//	conv1 1->6 5x5, ReLU, 2x2 max-pool,
//	conv2 6->16 5x5, ReLU, global average pool,
//	fc 16->10.
//
// Global average pooling keeps the linear head's weights aligned with the
// conv2 channels, which is what class activation maps rely on.
type LeNet struct {
	conv1    *conv2D
	conv2    *conv2D
	fcW      []float64 // [NumClasses][FeatureChannels]
	fcB      []float64
	lr       float64
	momentum float64
	workers  int
	velocity [][]float64
}

// NewLeNet constructs the model with seeded random initialization.
func NewLeNet(opts Options) *LeNet {
	if opts.LR <= 0 {
		opts.LR = 0.01
	}
	if opts.Momentum < 0 {
		opts.Momentum = 0
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	rng := rand.New(rand.NewSource(opts.Seed))
	m := &LeNet{
		conv1:    newConv2D(1, conv1Channels, kernelSize, InputSize, InputSize, rng),
		fcW:      make([]float64, NumClasses*FeatureChannels),
		fcB:      make([]float64, NumClasses),
		lr:       opts.LR,
		momentum: opts.Momentum,
		workers:  opts.Workers,
	}
	pooled := m.conv1.outH / 2
	m.conv2 = newConv2D(conv1Channels, FeatureChannels, kernelSize, pooled, pooled, rng)
	bound := 1 / math.Sqrt(FeatureChannels)
	for i := range m.fcW {
		m.fcW[i] = (rng.Float64()*2 - 1) * bound
	}
	m.velocity = m.newGrads()
	return m
}

// params lists the parameter slices in declaration order.
func (m *LeNet) params() [][]float64 {
	return [][]float64{m.conv1.weight, m.conv1.bias, m.conv2.weight, m.conv2.bias, m.fcW, m.fcB}
}

// Parameters returns live views of every parameter tensor in declaration
// order. The second-to-last entry is the linear head's weight matrix.
func (m *LeNet) Parameters() []Param {
	c1, c2 := m.conv1, m.conv2
	return []Param{
		{Name: "conv1.weight", Shape: []int{c1.outC, c1.inC, c1.k, c1.k}, Data: c1.weight},
		{Name: "conv1.bias", Shape: []int{c1.outC}, Data: c1.bias},
		{Name: "conv2.weight", Shape: []int{c2.outC, c2.inC, c2.k, c2.k}, Data: c2.weight},
		{Name: "conv2.bias", Shape: []int{c2.outC}, Data: c2.bias},
		{Name: "fc.weight", Shape: []int{NumClasses, FeatureChannels}, Data: m.fcW},
		{Name: "fc.bias", Shape: []int{NumClasses}, Data: m.fcB},
	}
}

func (m *LeNet) newGrads() [][]float64 {
	ps := m.params()
	out := make([][]float64, len(ps))
	for i, p := range ps {
		out[i] = make([]float64, len(p))
	}
	return out
}

func (m *LeNet) fc() *mat.Dense {
	return mat.NewDense(NumClasses, FeatureChannels, m.fcW)
}

// trace holds the intermediate values of one forward pass.
type trace struct {
	input   []float64
	pre1    []float64
	pool    []float64
	poolIdx []int
	pre2    []float64
	gap     []float64
	logits  []float64
}

func (m *LeNet) forward(x []float64) *trace {
	if len(x) != InputLen {
		panic(fmt.Sprintf("model: input has %d values, want %d", len(x), InputLen))
	}
	t := &trace{input: x}
	t.pre1 = m.conv1.forward(x)
	t.pool, t.poolIdx = maxPool2(relu(t.pre1), m.conv1.outC, m.conv1.outH, m.conv1.outW)
	t.pre2 = m.conv2.forward(t.pool)

	act2 := relu(t.pre2)
	area := m.conv2.outH * m.conv2.outW
	t.gap = make([]float64, FeatureChannels)
	for c := range t.gap {
		t.gap[c] = floats.Sum(act2[c*area:(c+1)*area]) / float64(area)
	}

	logits := mat.NewVecDense(NumClasses, nil)
	logits.MulVec(m.fc(), mat.NewVecDense(FeatureChannels, t.gap))
	logits.AddVec(logits, mat.NewVecDense(NumClasses, m.fcB))
	t.logits = logits.RawVector().Data
	return t
}

// Forward runs inference on one normalized 28x28 image and returns the
// logits. When obs is non-nil it receives the conv2 output before the ReLU.
func (m *LeNet) Forward(x []float64, obs ForwardObserver) []float64 {
	t := m.forward(x)
	if obs != nil {
		obs.OnForward(Tensor{C: FeatureChannels, H: m.conv2.outH, W: m.conv2.outW, Data: t.pre2})
	}
	return t.logits
}

// Predict returns class probabilities for one normalized image.
func (m *LeNet) Predict(x []float64) []float64 {
	return Softmax(m.forward(x).logits)
}

// backward accumulates the gradients of the cross-entropy loss for one
// sample into g and returns that loss.
func (m *LeNet) backward(t *trace, label int, g [][]float64) float64 {
	probs := Softmax(t.logits)
	loss := CrossEntropy(probs, label)
	probs[label] -= 1

	dl := mat.NewVecDense(NumClasses, probs)
	gw := mat.NewDense(NumClasses, FeatureChannels, g[4])
	gw.RankOne(gw, 1, dl, mat.NewVecDense(FeatureChannels, t.gap))
	floats.Add(g[5], probs)

	var gGap mat.VecDense
	gGap.MulVec(m.fc().T(), dl)

	area := m.conv2.outH * m.conv2.outW
	gPre2 := make([]float64, len(t.pre2))
	for c := 0; c < FeatureChannels; c++ {
		v := gGap.AtVec(c) / float64(area)
		for i := c * area; i < (c+1)*area; i++ {
			gPre2[i] = v
		}
	}
	reluBackward(t.pre2, gPre2)

	gPool := make([]float64, len(t.pool))
	m.conv2.backward(t.pool, gPre2, g[2], g[3], gPool)

	gPre1 := maxPoolBackward(gPool, t.poolIdx, len(t.pre1))
	reluBackward(t.pre1, gPre1)
	m.conv1.backward(t.input, gPre1, g[0], g[1], nil)
	return loss
}

// TrainStep executes one SGD-with-momentum step over the batch and returns
// the average loss. Inputs of the wrong size are skipped.
func (m *LeNet) TrainStep(batch Batch) float64 {
	n := len(batch.Inputs)
	if n == 0 {
		return 0
	}
	workers := min(m.workers, n)
	grads := make([][][]float64, workers)
	losses := make([]float64, workers)
	counts := make([]int, workers)
	fanOut(workers, func(w int) {
		g := m.newGrads()
		for i := w; i < n; i += workers {
			if len(batch.Inputs[i]) != InputLen {
				continue
			}
			losses[w] += m.backward(m.forward(batch.Inputs[i]), clampLabel(batch.Labels[i]), g)
			counts[w]++
		}
		grads[w] = g
	})

	total := grads[0]
	count := counts[0]
	loss := losses[0]
	for w := 1; w < workers; w++ {
		for p := range total {
			floats.Add(total[p], grads[w][p])
		}
		count += counts[w]
		loss += losses[w]
	}
	if count == 0 {
		return 0
	}

	inv := 1 / float64(count)
	for i, p := range m.params() {
		v := m.velocity[i]
		floats.Scale(m.momentum, v)
		floats.AddScaled(v, inv, total[i])
		floats.AddScaled(p, -m.lr, v)
	}
	return loss * inv
}

// Evaluate returns the summed cross-entropy and the number of correct
// predictions over the batch.
func (m *LeNet) Evaluate(batch Batch) (float64, int) {
	n := len(batch.Inputs)
	if n == 0 {
		return 0, 0
	}
	workers := min(m.workers, n)
	losses := make([]float64, workers)
	correct := make([]int, workers)
	fanOut(workers, func(w int) {
		for i := w; i < n; i += workers {
			if len(batch.Inputs[i]) != InputLen {
				continue
			}
			probs := m.Predict(batch.Inputs[i])
			label := clampLabel(batch.Labels[i])
			losses[w] += CrossEntropy(probs, label)
			if Argmax(probs) == label {
				correct[w]++
			}
		}
	})
	return floats.Sum(losses), sumInts(correct)
}

// fanOut runs body for every worker index in [0, workers) concurrently and
// waits for all of them.
func fanOut(workers int, body func(w int)) {
	var g errgroup.Group
	g.SetLimit(workers)
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			body(w)
			return nil
		})
	}
	g.Wait()
}

func sumInts(values []int) int {
	total := 0
	for _, v := range values {
		total += v
	}
	return total
}

func clampLabel(label int) int {
	if label < 0 || label >= NumClasses {
		label %= NumClasses
		if label < 0 {
			label += NumClasses
		}
	}
	return label
}
