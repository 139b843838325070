package metrics

import (
	"math"
	"testing"
	"time"
)

func TestWindowSnapshot(t *testing.T) {
	var w Window
	w.Record(64, 20*time.Millisecond, 10*time.Millisecond, 1.2)
	w.Record(64, 10*time.Millisecond, 20*time.Millisecond, 0.8)
	snap := w.Snapshot()
	if math.Abs(snap.ImagesPerSec-2133.3333) > 1 {
		t.Fatalf("unexpected throughput %.2f", snap.ImagesPerSec)
	}
	if w.samples != 0 || w.steps != 0 {
		t.Fatalf("window was not reset")
	}
	if snap.LastLoss != 0.8 {
		t.Fatalf("expected last loss 0.8, got %.2f", snap.LastLoss)
	}
	if math.Abs(snap.AvgLoss-1.0) > 1e-9 {
		t.Fatalf("expected avg loss 1.0, got %.4f", snap.AvgLoss)
	}
}

func TestEvalResult(t *testing.T) {
	var e Eval
	e.Add(4, 3, 4)
	e.Add(2, 1, 2)
	res := e.Result()
	if res.Correct != 4 || res.Total != 6 {
		t.Fatalf("unexpected counts %d/%d", res.Correct, res.Total)
	}
	if math.Abs(res.AvgLoss-1) > 1e-9 {
		t.Fatalf("unexpected avg loss %f", res.AvgLoss)
	}
	if math.Abs(res.Accuracy-4.0/6.0) > 1e-9 {
		t.Fatalf("unexpected accuracy %f", res.Accuracy)
	}
}

func TestEvalEmpty(t *testing.T) {
	var e Eval
	if res := e.Result(); res.AvgLoss != 0 || res.Accuracy != 0 {
		t.Fatalf("expected zero result, got %+v", res)
	}
}
