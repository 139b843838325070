package cam

import (
	"errors"
	"testing"

	"mnist-cam/internal/model"
)

type fakeParams []model.Param

func (f fakeParams) Parameters() []model.Param { return f }

func TestExtractWeightsDetached(t *testing.T) {
	m := model.NewLeNet(model.Options{Seed: 5})
	w, err := ExtractWeights(m, model.NumClasses, model.FeatureChannels)
	if err != nil {
		t.Fatalf("ExtractWeights: %v", err)
	}
	params := m.Parameters()
	fc := params[len(params)-2]
	if w.At(2, 3) != fc.Data[2*model.FeatureChannels+3] {
		t.Fatalf("weight mismatch: %f vs %f", w.At(2, 3), fc.Data[2*model.FeatureChannels+3])
	}
	before := w.At(0, 0)
	fc.Data[0] += 1
	if w.At(0, 0) != before {
		t.Fatal("extracted weights alias the model")
	}
}

func TestExtractWeightsErrors(t *testing.T) {
	cases := map[string]fakeParams{
		"too few": {{Name: "only", Shape: []int{10, 16}, Data: make([]float64, 160)}},
		"wrong shape": {
			{Name: "fc.weight", Shape: []int{10, 8}, Data: make([]float64, 80)},
			{Name: "fc.bias", Shape: []int{10}, Data: make([]float64, 10)},
		},
	}
	for name, src := range cases {
		if _, err := ExtractWeights(src, 10, 16); !errors.Is(err, ErrShapeMismatch) {
			t.Fatalf("%s: expected ErrShapeMismatch, got %v", name, err)
		}
	}
}
