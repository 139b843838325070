package model

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Softmax converts logits into class probabilities.
func Softmax(logits []float64) []float64 {
	maxLogit := floats.Max(logits)
	sum := 0.0
	out := make([]float64, len(logits))
	for i, v := range logits {
		exp := math.Exp(v - maxLogit)
		out[i] = exp
		sum += exp
	}
	floats.Scale(1/sum, out)
	return out
}

// Argmax returns the index of the largest value, the first on ties.
func Argmax(values []float64) int {
	return floats.MaxIdx(values)
}

// CrossEntropy returns the negative log-likelihood of label under probs.
func CrossEntropy(probs []float64, label int) float64 {
	return -math.Log(math.Max(probs[label], 1e-12))
}
