package trainer

import (
	"context"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/pkg/errors"

	"mnist-cam/internal/cam"
	"mnist-cam/internal/dataset"
	"mnist-cam/internal/metrics"
	"mnist-cam/internal/model"
)

// RunConfig captures the knobs required by the training loop.
type RunConfig struct {
	Train *dataset.Set
	Test  *dataset.Set

	Epochs        int
	BatchSize     int
	TestBatchSize int
	LR            float64
	Momentum      float64
	Workers       int
	LogInterval   int
	Seed          int64

	ImagesDir string
	ResultDir string
	GifDir    string
	Samples   int
	Policy    cam.ClassPolicy

	// Checkpoint, when set, is where the final parameters are written.
	Checkpoint string
}

// Run trains for cfg.Epochs. Each epoch trains, renders the activation map
// frames and evaluates, in that order; after the last epoch the frames are
// assembled into one GIF per sample.
func Run(ctx context.Context, cfg RunConfig) error {
	if err := validate(&cfg); err != nil {
		return err
	}

	mdl := model.NewLeNet(model.Options{
		LR:       cfg.LR,
		Momentum: cfg.Momentum,
		Seed:     cfg.Seed,
		Workers:  cfg.Workers,
	})
	viz, err := cam.NewVisualizer(mdl, cam.Options{
		ImagesDir: cfg.ImagesDir,
		ResultDir: cfg.ResultDir,
		Samples:   cfg.Samples,
		Policy:    cfg.Policy,
	})
	if err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		if err := trainEpoch(ctx, mdl, cfg, rng, epoch); err != nil {
			return err
		}
		start := time.Now()
		if err := viz.Render(epoch); err != nil {
			return errors.Wrapf(err, "render epoch %d", epoch)
		}
		log.Printf("cam epoch=%d samples=%d policy=%s elapsed_ms=%d",
			epoch, cfg.Samples, cfg.Policy, time.Since(start).Milliseconds())
		if err := testEpoch(ctx, mdl, cfg, epoch); err != nil {
			return err
		}
	}

	if err := cam.AssembleAll(cfg.ResultDir, cfg.GifDir, cfg.Samples, cfg.Epochs); err != nil {
		return err
	}
	log.Printf("gifs dir=%s samples=%d frames=%d", cfg.GifDir, cfg.Samples, cfg.Epochs)

	if cfg.Checkpoint != "" {
		if err := mdl.Save(cfg.Checkpoint); err != nil {
			return err
		}
		log.Printf("checkpoint path=%s", cfg.Checkpoint)
	}
	return nil
}

func validate(cfg *RunConfig) error {
	if cfg.Train.Len() == 0 {
		return errors.New("trainer: empty training set")
	}
	if cfg.Test.Len() == 0 {
		return errors.New("trainer: empty test set")
	}
	if err := cfg.Train.Validate(); err != nil {
		return err
	}
	if err := cfg.Test.Validate(); err != nil {
		return err
	}
	if cfg.Epochs <= 0 {
		return errors.New("trainer: epochs must be > 0")
	}
	if cfg.BatchSize <= 0 {
		return errors.New("trainer: batch size must be > 0")
	}
	if cfg.TestBatchSize <= 0 {
		cfg.TestBatchSize = cfg.BatchSize
	}
	if cfg.LogInterval <= 0 {
		cfg.LogInterval = 10
	}
	if cfg.ResultDir == "" || cfg.GifDir == "" {
		return errors.New("trainer: result and gif dirs must be set")
	}
	if err := os.MkdirAll(cfg.GifDir, 0o755); err != nil {
		return errors.Wrapf(err, "create gif dir %s", cfg.GifDir)
	}
	return nil
}

func trainEpoch(ctx context.Context, mdl model.Model, cfg RunConfig, rng *rand.Rand, epoch int) error {
	var window metrics.Window
	batches := cfg.Train.Batches(rng, cfg.BatchSize)
	total := cfg.Train.Len()
	for idx, indices := range batches {
		if err := ctx.Err(); err != nil {
			return err
		}
		startData := time.Now()
		inputs, labels := cfg.Train.Gather(indices)
		dataTime := time.Since(startData)

		startCompute := time.Now()
		loss := mdl.TrainStep(model.Batch{Inputs: inputs, Labels: labels})
		window.Record(len(indices), dataTime, time.Since(startCompute), loss)

		if idx%cfg.LogInterval == 0 {
			snap := window.Snapshot()
			log.Printf("train epoch=%d progress=%d/%d (%.0f%%) loss=%.6f avg_loss=%.6f images_per_sec=%.1f data_ms=%.2f compute_ms=%.2f",
				epoch,
				idx*cfg.BatchSize,
				total,
				100*float64(idx)/float64(len(batches)),
				snap.LastLoss,
				snap.AvgLoss,
				snap.ImagesPerSec,
				snap.AvgDataMS,
				snap.AvgComputeMS,
			)
		}
	}
	return nil
}

func testEpoch(ctx context.Context, mdl model.Model, cfg RunConfig, epoch int) error {
	var eval metrics.Eval
	for _, indices := range cfg.Test.Batches(nil, cfg.TestBatchSize) {
		if err := ctx.Err(); err != nil {
			return err
		}
		inputs, labels := cfg.Test.Gather(indices)
		loss, correct := mdl.Evaluate(model.Batch{Inputs: inputs, Labels: labels})
		eval.Add(loss, correct, len(indices))
	}
	res := eval.Result()
	log.Printf("test epoch=%d avg_loss=%.4f accuracy=%d/%d (%.0f%%)",
		epoch, res.AvgLoss, res.Correct, res.Total, 100*res.Accuracy)
	return nil
}
