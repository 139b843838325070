package metrics

import "time"

// Window accumulates training throughput and loss across steps.
type Window struct {
	samples  int
	data     time.Duration
	compute  time.Duration
	steps    int
	lossSum  float64
	lastLoss float64
}

// Record adds a new measurement to the window.
func (w *Window) Record(batchSize int, dataTime, computeTime time.Duration, loss float64) {
	w.samples += batchSize
	w.data += dataTime
	w.compute += computeTime
	w.steps++
	w.lossSum += loss
	w.lastLoss = loss
}

// Snapshot returns aggregated metrics and resets the window.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{LastLoss: w.lastLoss}
	total := w.data + w.compute
	if total > 0 {
		snap.ImagesPerSec = float64(w.samples) / total.Seconds()
	}
	if w.steps > 0 {
		snap.AvgDataMS = (w.data.Seconds() * 1000) / float64(w.steps)
		snap.AvgComputeMS = (w.compute.Seconds() * 1000) / float64(w.steps)
		snap.AvgLoss = w.lossSum / float64(w.steps)
	}
	*w = Window{}
	return snap
}

// Snapshot represents loggable training metrics.
type Snapshot struct {
	ImagesPerSec float64
	AvgDataMS    float64
	AvgComputeMS float64
	AvgLoss      float64
	LastLoss     float64
}

// Eval accumulates summed loss and correct predictions over a test pass.
type Eval struct {
	lossSum float64
	correct int
	total   int
}

// Add records one evaluated batch.
func (e *Eval) Add(lossSum float64, correct, size int) {
	e.lossSum += lossSum
	e.correct += correct
	e.total += size
}

// Result summarizes the pass.
func (e *Eval) Result() EvalResult {
	res := EvalResult{Correct: e.correct, Total: e.total}
	if e.total > 0 {
		res.AvgLoss = e.lossSum / float64(e.total)
		res.Accuracy = float64(e.correct) / float64(e.total)
	}
	return res
}

// EvalResult is the loggable outcome of a test pass.
type EvalResult struct {
	AvgLoss  float64
	Accuracy float64
	Correct  int
	Total    int
}
