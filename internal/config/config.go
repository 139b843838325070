package config

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Config captures the runtime knobs for a training run.
type Config struct {
	DataDir    string `yaml:"data_dir"`
	Mirror     string `yaml:"mirror"`
	TrainRoot  string `yaml:"train_root"`
	TestRoot   string `yaml:"test_root"`
	ImagesDir  string `yaml:"images_dir"`
	ResultDir  string `yaml:"result_dir"`
	GifDir     string `yaml:"gif_dir"`
	Checkpoint string `yaml:"checkpoint"`

	Epochs        int     `yaml:"epochs"`
	BatchSize     int     `yaml:"batch_size"`
	TestBatchSize int     `yaml:"test_batch_size"`
	LR            float64 `yaml:"lr"`
	Momentum      float64 `yaml:"momentum"`
	NoAccel       bool    `yaml:"no_accel"`
	Seed          int64   `yaml:"seed"`
	LogInterval   int     `yaml:"log_interval"`

	Samples           int  `yaml:"samples"`
	ClassByPrediction bool `yaml:"class_by_prediction"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		DataDir:       "data",
		ImagesDir:     "imgs",
		ResultDir:     "result",
		GifDir:        "gifs",
		Epochs:        10,
		BatchSize:     64,
		TestBatchSize: 1000,
		LR:            0.01,
		Momentum:      0.5,
		Seed:          1,
		LogInterval:   10,
		Samples:       10,
	}
}

// Overrides captures CLI supplied values. Zero values leave the config
// untouched.
type Overrides struct {
	DataDir           string
	TrainRoot         string
	TestRoot          string
	ImagesDir         string
	ResultDir         string
	GifDir            string
	Checkpoint        string
	Epochs            int
	BatchSize         int
	TestBatchSize     int
	LR                float64
	Momentum          *float64 // nil when unset; zero is a valid setting
	NoAccel           bool
	Seed              int64
	LogInterval       int
	ClassByPrediction bool
}

// Load reads a Config from YAML on top of the defaults and validates it.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}
	defer f.Close()

	cfg := Default()
	if err := parseYAML(f, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyOverrides updates c using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	setString(&c.DataDir, o.DataDir)
	setString(&c.TrainRoot, o.TrainRoot)
	setString(&c.TestRoot, o.TestRoot)
	setString(&c.ImagesDir, o.ImagesDir)
	setString(&c.ResultDir, o.ResultDir)
	setString(&c.GifDir, o.GifDir)
	setString(&c.Checkpoint, o.Checkpoint)
	if o.Epochs > 0 {
		c.Epochs = o.Epochs
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.TestBatchSize > 0 {
		c.TestBatchSize = o.TestBatchSize
	}
	if o.LR > 0 {
		c.LR = o.LR
	}
	if o.Momentum != nil {
		c.Momentum = *o.Momentum
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.LogInterval > 0 {
		c.LogInterval = o.LogInterval
	}
	c.NoAccel = c.NoAccel || o.NoAccel
	c.ClassByPrediction = c.ClassByPrediction || o.ClassByPrediction
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if (c.TrainRoot == "") != (c.TestRoot == "") {
		return errors.New("train_root and test_root must be set together")
	}
	if c.TrainRoot == "" && c.DataDir == "" {
		return errors.New("either data_dir or train_root/test_root must be set")
	}
	if c.ImagesDir == "" || c.ResultDir == "" || c.GifDir == "" {
		return errors.New("images_dir, result_dir and gif_dir must be set")
	}
	if c.Epochs <= 0 {
		return errors.Errorf("epochs must be > 0 (got %d)", c.Epochs)
	}
	if c.BatchSize <= 0 {
		return errors.Errorf("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.LR <= 0 {
		return errors.Errorf("lr must be > 0 (got %g)", c.LR)
	}
	if c.Momentum < 0 || c.Momentum >= 1 {
		return errors.Errorf("momentum must be in [0, 1) (got %g)", c.Momentum)
	}
	if c.Samples <= 0 {
		return errors.Errorf("samples must be > 0 (got %d)", c.Samples)
	}
	if c.TestBatchSize <= 0 {
		c.TestBatchSize = c.BatchSize
	}
	if c.LogInterval <= 0 {
		c.LogInterval = 10
	}
	return nil
}

func parseYAML(r io.Reader, cfg *Config) error {
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return errors.Errorf("line %d: missing ':'", lineNo)
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), "\"'")
		if err := cfg.set(key, value); err != nil {
			return errors.Wrapf(err, "line %d: %s", lineNo, key)
		}
	}
	return scanner.Err()
}

func (c *Config) set(key, value string) error {
	var err error
	switch key {
	case "data_dir":
		c.DataDir = value
	case "mirror":
		c.Mirror = value
	case "train_root":
		c.TrainRoot = value
	case "test_root":
		c.TestRoot = value
	case "images_dir":
		c.ImagesDir = value
	case "result_dir":
		c.ResultDir = value
	case "gif_dir":
		c.GifDir = value
	case "checkpoint":
		c.Checkpoint = value
	case "epochs":
		c.Epochs, err = strconv.Atoi(value)
	case "batch_size":
		c.BatchSize, err = strconv.Atoi(value)
	case "test_batch_size":
		c.TestBatchSize, err = strconv.Atoi(value)
	case "lr":
		c.LR, err = strconv.ParseFloat(value, 64)
	case "momentum":
		c.Momentum, err = strconv.ParseFloat(value, 64)
	case "no_accel":
		c.NoAccel, err = strconv.ParseBool(value)
	case "seed":
		c.Seed, err = strconv.ParseInt(value, 10, 64)
	case "log_interval":
		c.LogInterval, err = strconv.Atoi(value)
	case "samples":
		c.Samples, err = strconv.Atoi(value)
	case "class_by_prediction":
		c.ClassByPrediction, err = strconv.ParseBool(value)
	default:
		return errors.New("unknown key")
	}
	return err
}
