package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/google/uuid"

	"mnist-cam/internal/cam"
	"mnist-cam/internal/config"
	"mnist-cam/internal/dataset"
	"mnist-cam/internal/trainer"
)

func main() {
	cfgPath := flag.String("config", "", "Path to YAML config (defaults are used when empty)")
	dataDir := flag.String("data-dir", "", "Directory holding the MNIST IDX files")
	trainRoot := flag.String("train-root", "", "WebDataset shard root for training (replaces IDX)")
	testRoot := flag.String("test-root", "", "WebDataset shard root for testing")
	imagesDir := flag.String("images-dir", "", "Directory with sample images 0.jpg..N.jpg")
	resultDir := flag.String("result-dir", "", "Directory for per-epoch CAM frames")
	gifDir := flag.String("gif-dir", "", "Directory for per-sample animations")
	checkpoint := flag.String("checkpoint", "", "Write final parameters to this path")
	epochs := flag.Int("epochs", 0, "Number of epochs to train (default 10)")
	batchSize := flag.Int("batch-size", 0, "Input batch size for training (default 64)")
	testBatchSize := flag.Int("test-batch-size", 0, "Input batch size for testing (default 1000)")
	lr := flag.Float64("lr", 0, "Learning rate (default 0.01)")
	momentum := flag.Float64("momentum", 0, "SGD momentum (default 0.5; 0 disables)")
	noAccel := flag.Bool("no-accel", false, "Disable multi-core batch computation")
	seed := flag.Int64("seed", 0, "Random seed (default 1)")
	logInterval := flag.Int("log-interval", 0, "Batches between training status lines (default 10)")
	byPrediction := flag.Bool("class-by-prediction", false, "Visualize the predicted class instead of the sample index")

	flag.Parse()

	log.SetPrefix(fmt.Sprintf("run=%s ", uuid.NewString()))

	cfg := config.Default()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}

	overrides := config.Overrides{
		DataDir:           *dataDir,
		TrainRoot:         *trainRoot,
		TestRoot:          *testRoot,
		ImagesDir:         *imagesDir,
		ResultDir:         *resultDir,
		GifDir:            *gifDir,
		Checkpoint:        *checkpoint,
		Epochs:            *epochs,
		BatchSize:         *batchSize,
		TestBatchSize:     *testBatchSize,
		LR:                *lr,
		NoAccel:           *noAccel,
		Seed:              *seed,
		LogInterval:       *logInterval,
		ClassByPrediction: *byPrediction,
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "momentum" {
			overrides.Momentum = momentum
		}
	})
	cfg.ApplyOverrides(overrides)

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	train, test, err := loadData(ctx, cfg)
	if err != nil {
		log.Fatalf("load dataset: %v", err)
	}
	log.Printf("dataset train=%d test=%d", train.Len(), test.Len())

	workers := runtime.NumCPU()
	if cfg.NoAccel {
		workers = 1
	}
	policy := cam.ClassBySample
	if cfg.ClassByPrediction {
		policy = cam.ClassByPrediction
	}

	runCfg := trainer.RunConfig{
		Train:         train,
		Test:          test,
		Epochs:        cfg.Epochs,
		BatchSize:     cfg.BatchSize,
		TestBatchSize: cfg.TestBatchSize,
		LR:            cfg.LR,
		Momentum:      cfg.Momentum,
		Workers:       workers,
		LogInterval:   cfg.LogInterval,
		Seed:          cfg.Seed,
		ImagesDir:     cfg.ImagesDir,
		ResultDir:     cfg.ResultDir,
		GifDir:        cfg.GifDir,
		Samples:       cfg.Samples,
		Policy:        policy,
		Checkpoint:    cfg.Checkpoint,
	}

	if err := trainer.Run(ctx, runCfg); err != nil {
		log.Fatalf("training failed: %v", err)
	}
}

func loadData(ctx context.Context, cfg *config.Config) (*dataset.Set, *dataset.Set, error) {
	if cfg.TrainRoot != "" {
		train, err := dataset.LoadShardRoot(ctx, cfg.TrainRoot)
		if err != nil {
			return nil, nil, err
		}
		test, err := dataset.LoadShardRoot(ctx, cfg.TestRoot)
		if err != nil {
			return nil, nil, err
		}
		return train, test, nil
	}

	if err := dataset.EnsureIDX(ctx, cfg.DataDir, cfg.Mirror, dataset.MNISTTrain, dataset.MNISTTest); err != nil {
		return nil, nil, err
	}
	train, err := dataset.LoadIDX(cfg.DataDir, dataset.MNISTTrain)
	if err != nil {
		return nil, nil, err
	}
	test, err := dataset.LoadIDX(cfg.DataDir, dataset.MNISTTest)
	if err != nil {
		return nil, nil, err
	}
	return train, test, nil
}
