package model

import (
	"math"
	"math/rand"
)

// conv2D is a valid (unpadded, stride 1) convolution over flattened
// [C][H][W] inputs.
type conv2D struct {
	inC, outC, k int
	inH, inW     int
	outH, outW   int
	weight       []float64 // [outC][inC][k][k]
	bias         []float64
}

func newConv2D(inC, outC, k, inH, inW int, rng *rand.Rand) *conv2D {
	c := &conv2D{
		inC:    inC,
		outC:   outC,
		k:      k,
		inH:    inH,
		inW:    inW,
		outH:   inH - k + 1,
		outW:   inW - k + 1,
		weight: make([]float64, outC*inC*k*k),
		bias:   make([]float64, outC),
	}
	// He initialization
	stddev := math.Sqrt(2.0 / float64(inC*k*k))
	for i := range c.weight {
		c.weight[i] = rng.NormFloat64() * stddev
	}
	return c
}

func (c *conv2D) outLen() int {
	return c.outC * c.outH * c.outW
}

func (c *conv2D) forward(in []float64) []float64 {
	out := make([]float64, c.outLen())
	for f := 0; f < c.outC; f++ {
		for oh := 0; oh < c.outH; oh++ {
			for ow := 0; ow < c.outW; ow++ {
				sum := c.bias[f]
				for ic := 0; ic < c.inC; ic++ {
					for kh := 0; kh < c.k; kh++ {
						inRow := (ic*c.inH+oh+kh)*c.inW + ow
						wRow := ((f*c.inC+ic)*c.k + kh) * c.k
						for kw := 0; kw < c.k; kw++ {
							sum += in[inRow+kw] * c.weight[wRow+kw]
						}
					}
				}
				out[(f*c.outH+oh)*c.outW+ow] = sum
			}
		}
	}
	return out
}

// backward accumulates parameter gradients into gw and gb. The input
// gradient is accumulated into gin unless it is nil.
func (c *conv2D) backward(in, gradOut, gw, gb, gin []float64) {
	for f := 0; f < c.outC; f++ {
		for oh := 0; oh < c.outH; oh++ {
			for ow := 0; ow < c.outW; ow++ {
				g := gradOut[(f*c.outH+oh)*c.outW+ow]
				if g == 0 {
					continue
				}
				gb[f] += g
				for ic := 0; ic < c.inC; ic++ {
					for kh := 0; kh < c.k; kh++ {
						inRow := (ic*c.inH+oh+kh)*c.inW + ow
						wRow := ((f*c.inC+ic)*c.k + kh) * c.k
						for kw := 0; kw < c.k; kw++ {
							gw[wRow+kw] += g * in[inRow+kw]
							if gin != nil {
								gin[inRow+kw] += g * c.weight[wRow+kw]
							}
						}
					}
				}
			}
		}
	}
}

func relu(in []float64) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		if v > 0 {
			out[i] = v
		}
	}
	return out
}

// reluBackward zeroes grad wherever the pre-activation was not positive.
func reluBackward(pre, grad []float64) {
	for i, v := range pre {
		if v <= 0 {
			grad[i] = 0
		}
	}
}

// maxPool2 applies a 2x2 stride-2 max pool and records the flat input index
// of each selected value.
func maxPool2(in []float64, c, h, w int) ([]float64, []int) {
	oh, ow := h/2, w/2
	out := make([]float64, c*oh*ow)
	idx := make([]int, len(out))
	for ch := 0; ch < c; ch++ {
		for y := 0; y < oh; y++ {
			for x := 0; x < ow; x++ {
				best := (ch*h+2*y)*w + 2*x
				for _, cand := range [3]int{best + 1, best + w, best + w + 1} {
					if in[cand] > in[best] {
						best = cand
					}
				}
				o := (ch*oh+y)*ow + x
				out[o] = in[best]
				idx[o] = best
			}
		}
	}
	return out, idx
}

func maxPoolBackward(grad []float64, idx []int, inLen int) []float64 {
	out := make([]float64, inLen)
	for i, g := range grad {
		out[idx[i]] += g
	}
	return out
}
