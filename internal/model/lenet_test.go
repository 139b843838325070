package model

import (
	"math"
	"math/rand"
	"path/filepath"
	"testing"
)

func randomBatch(seed int64, n int) Batch {
	rng := rand.New(rand.NewSource(seed))
	batch := Batch{}
	for i := 0; i < n; i++ {
		input := make([]float64, InputLen)
		for j := range input {
			input[j] = rng.Float64()*2 - 0.5
		}
		batch.Inputs = append(batch.Inputs, input)
		batch.Labels = append(batch.Labels, i%NumClasses)
	}
	return batch
}

func TestLeNetTrainStepReducesLoss(t *testing.T) {
	model := NewLeNet(Options{LR: 0.05, Momentum: 0.5, Seed: 1})
	batch := randomBatch(3, 8)
	first := model.TrainStep(batch)
	var last float64
	for i := 0; i < 10; i++ {
		last = model.TrainStep(batch)
	}
	if last >= first {
		t.Fatalf("expected loss to decrease; first=%f last=%f", first, last)
	}
}

func TestLeNetParallelMatchesSerial(t *testing.T) {
	serial := NewLeNet(Options{LR: 0.01, Momentum: 0.5, Seed: 7, Workers: 1})
	parallel := NewLeNet(Options{LR: 0.01, Momentum: 0.5, Seed: 7, Workers: 4})
	batch := randomBatch(11, 9)

	lossA := serial.TrainStep(batch)
	lossB := parallel.TrainStep(batch)
	if math.Abs(lossA-lossB) > 1e-9 {
		t.Fatalf("loss differs: serial=%f parallel=%f", lossA, lossB)
	}
	pa, pb := serial.Parameters(), parallel.Parameters()
	for i := range pa {
		for j := range pa[i].Data {
			if math.Abs(pa[i].Data[j]-pb[i].Data[j]) > 1e-9 {
				t.Fatalf("%s[%d] differs: %f vs %f", pa[i].Name, j, pa[i].Data[j], pb[i].Data[j])
			}
		}
	}
}

func TestLeNetParametersOrder(t *testing.T) {
	params := NewLeNet(Options{Seed: 1}).Parameters()
	if len(params) != 6 {
		t.Fatalf("expected 6 params, got %d", len(params))
	}
	fc := params[len(params)-2]
	if fc.Name != "fc.weight" {
		t.Fatalf("second-to-last param is %s", fc.Name)
	}
	if fc.Shape[0] != NumClasses || fc.Shape[1] != FeatureChannels {
		t.Fatalf("unexpected fc shape %v", fc.Shape)
	}
	if len(fc.Data) != NumClasses*FeatureChannels {
		t.Fatalf("unexpected fc size %d", len(fc.Data))
	}
}

type recordingObserver struct {
	calls int
	last  Tensor
}

func (r *recordingObserver) OnForward(out Tensor) {
	r.calls++
	r.last = out.Clone()
}

func TestLeNetForwardNotifiesObserver(t *testing.T) {
	model := NewLeNet(Options{Seed: 2})
	obs := &recordingObserver{}
	logits := model.Forward(randomBatch(1, 1).Inputs[0], obs)
	if len(logits) != NumClasses {
		t.Fatalf("expected %d logits, got %d", NumClasses, len(logits))
	}
	if obs.calls != 1 {
		t.Fatalf("expected one notification, got %d", obs.calls)
	}
	if obs.last.C != FeatureChannels || obs.last.H != FeatureSize || obs.last.W != FeatureSize {
		t.Fatalf("unexpected feature shape %dx%dx%d", obs.last.C, obs.last.H, obs.last.W)
	}
	if len(obs.last.Data) != FeatureChannels*FeatureSize*FeatureSize {
		t.Fatalf("unexpected feature size %d", len(obs.last.Data))
	}
}

func TestLeNetEvaluate(t *testing.T) {
	model := NewLeNet(Options{Seed: 4, Workers: 3})
	batch := randomBatch(5, 7)
	loss, correct := model.Evaluate(batch)
	if loss <= 0 || math.IsNaN(loss) {
		t.Fatalf("unexpected loss %f", loss)
	}
	if correct < 0 || correct > len(batch.Inputs) {
		t.Fatalf("unexpected correct count %d", correct)
	}
}

func TestLeNetEvaluateParallelMatchesSerial(t *testing.T) {
	batch := randomBatch(6, 5)
	serial := NewLeNet(Options{Seed: 12, Workers: 1})
	wide := NewLeNet(Options{Seed: 12, Workers: 8})
	lossA, correctA := serial.Evaluate(batch)
	lossB, correctB := wide.Evaluate(batch)
	if math.Abs(lossA-lossB) > 1e-9 || correctA != correctB {
		t.Fatalf("serial=(%f,%d) parallel=(%f,%d)", lossA, correctA, lossB, correctB)
	}
}

func TestCheckpointRestoresPredictions(t *testing.T) {
	src := NewLeNet(Options{Seed: 8})
	src.TrainStep(randomBatch(9, 4))
	path := filepath.Join(t.TempDir(), "ckpt.json")
	if err := src.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	dst := NewLeNet(Options{Seed: 99})
	if err := dst.Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	input := randomBatch(10, 1).Inputs[0]
	want, got := src.Predict(input), dst.Predict(input)
	for i := range want {
		if math.Abs(want[i]-got[i]) > 1e-12 {
			t.Fatalf("prob[%d]=%f want %f", i, got[i], want[i])
		}
	}
}

func TestSoftmaxSumsToOne(t *testing.T) {
	probs := Softmax([]float64{1000, 1001, 999})
	sum := 0.0
	for _, p := range probs {
		sum += p
	}
	if math.Abs(sum-1) > 1e-12 {
		t.Fatalf("softmax sum %f", sum)
	}
	if Argmax(probs) != 1 {
		t.Fatalf("argmax %d", Argmax(probs))
	}
}
