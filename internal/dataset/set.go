package dataset

import (
	"math/rand"

	"github.com/pkg/errors"
)

// Set is an in-memory labelled dataset of normalized images.
type Set struct {
	Images [][]float64
	Labels []int
}

// Len returns the number of samples.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Images)
}

// Append adds one sample.
func (s *Set) Append(image []float64, label int) {
	s.Images = append(s.Images, image)
	s.Labels = append(s.Labels, label)
}

// Validate checks that images and labels line up.
func (s *Set) Validate() error {
	if s == nil {
		return errors.New("dataset: nil set")
	}
	if len(s.Images) != len(s.Labels) {
		return errors.Errorf("dataset: %d images but %d labels", len(s.Images), len(s.Labels))
	}
	return nil
}

// Batches partitions the sample indices into batches of batchSize. The
// order is shuffled when rng is non-nil; the last batch may be short.
func (s *Set) Batches(rng *rand.Rand, batchSize int) [][]int {
	n := s.Len()
	if n == 0 || batchSize <= 0 {
		return nil
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if rng != nil {
		rng.Shuffle(n, func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}
	batches := make([][]int, 0, (n+batchSize-1)/batchSize)
	for start := 0; start < n; start += batchSize {
		batches = append(batches, order[start:min(start+batchSize, n)])
	}
	return batches
}

// Gather returns the images and labels at the given indices.
func (s *Set) Gather(indices []int) ([][]float64, []int) {
	images := make([][]float64, len(indices))
	labels := make([]int, len(indices))
	for i, idx := range indices {
		images[i] = s.Images[idx]
		labels[i] = s.Labels[idx]
	}
	return images, labels
}
