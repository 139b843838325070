package cam

import (
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"mnist-cam/internal/dataset"
	"mnist-cam/internal/model"
)

// Inferencer is the model surface a Visualizer needs.
type Inferencer interface {
	ParameterSource
	Forward(x []float64, obs model.ForwardObserver) []float64
}

// Options configures a Visualizer.
type Options struct {
	ImagesDir  string
	ResultDir  string
	Samples    int
	NumClasses int
	Policy     ClassPolicy
	Compositor *Compositor
}

// Visualizer renders one frame per sample image after every epoch.
type Visualizer struct {
	model   Inferencer
	opts    Options
	capture *FeatureCapture
	sources []image.Image
}

// NewVisualizer loads the sample images {ImagesDir}/{i}.jpg for
// i in [0, Samples) and prepares the output directory.
func NewVisualizer(m Inferencer, opts Options) (*Visualizer, error) {
	if opts.NumClasses <= 0 {
		opts.NumClasses = model.NumClasses
	}
	if opts.Samples <= 0 {
		return nil, errors.Errorf("cam: samples must be > 0 (got %d)", opts.Samples)
	}
	if opts.Policy == ClassBySample && opts.Samples > opts.NumClasses {
		return nil, errors.Wrapf(ErrShapeMismatch, "%d samples but only %d class rows", opts.Samples, opts.NumClasses)
	}
	if opts.Compositor == nil {
		opts.Compositor = NewCompositor()
	}
	if err := os.MkdirAll(opts.ResultDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create result dir %s", opts.ResultDir)
	}

	v := &Visualizer{
		model:   m,
		opts:    opts,
		capture: NewFeatureCapture(model.FeatureChannels, model.FeatureSize, model.FeatureSize),
	}
	for i := 0; i < opts.Samples; i++ {
		img, err := loadImage(filepath.Join(opts.ImagesDir, fmt.Sprintf("%d.jpg", i)))
		if err != nil {
			return nil, err
		}
		v.sources = append(v.sources, img)
	}
	return v, nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open sample %s", path)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decode sample %s", path)
	}
	return img, nil
}

// Frame is the rendered activation map of one sample.
type Frame struct {
	Sample int
	// Row is the weight row the map was computed from.
	Row     int
	Prob    float64
	Caption string
	// Intensity is nil when the map had no range to normalize.
	Intensity *image.Gray
	Image     *image.RGBA
}

// Render writes the frame of every sample for epoch. Samples are processed
// strictly one at a time so the capture always holds the current sample's
// feature map.
func (v *Visualizer) Render(epoch int) error {
	weights, err := v.weights()
	if err != nil {
		return err
	}
	for i := range v.sources {
		f, err := v.renderSample(weights, i)
		if err != nil {
			return err
		}
		if f.Intensity == nil {
			log.Printf("cam epoch=%d sample=%d degenerate activation map", epoch, i)
		}
		if err := SaveJPEG(FramePath(v.opts.ResultDir, i, epoch), f.Image); err != nil {
			return err
		}
	}
	return nil
}

// RenderSample forwards sample i through the model and renders its frame
// without writing it.
func (v *Visualizer) RenderSample(i int) (Frame, error) {
	if i < 0 || i >= len(v.sources) {
		return Frame{}, errors.Errorf("cam: sample %d outside [0, %d)", i, len(v.sources))
	}
	weights, err := v.weights()
	if err != nil {
		return Frame{}, err
	}
	return v.renderSample(weights, i)
}

func (v *Visualizer) weights() (*mat.Dense, error) {
	return ExtractWeights(v.model, v.opts.NumClasses, v.capture.Current().C)
}

func (v *Visualizer) renderSample(weights *mat.Dense, i int) (Frame, error) {
	src := v.sources[i]
	probs := model.Softmax(v.model.Forward(dataset.Preprocess(src), v.capture))
	f := Frame{Sample: i, Row: v.opts.Policy.Row(i, probs)}
	f.Prob = probs[f.Row]
	f.Caption = Caption(i, f.Prob)

	raw, err := Compute(v.capture.Current(), weights, f.Row)
	if err != nil {
		return Frame{}, errors.Wrapf(err, "sample %d", i)
	}
	if intensity, ok := Normalize(raw); ok {
		f.Intensity = intensity
	}
	f.Image = v.opts.Compositor.Compose(f.Intensity, src, f.Caption)
	return f, nil
}
