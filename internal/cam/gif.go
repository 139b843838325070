package cam

import (
	"image"
	"image/color/palette"
	"image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

// FrameDelay is the per-frame delay of assembled animations, in 100ths of a
// second.
const FrameDelay = 10

// Assemble encodes the frames of sample for epochs 1..epochs, in order, into
// one GIF under gifDir. It fails with ErrMissingFrame if any frame is absent
// and writes nothing in that case.
func Assemble(resultDir, gifDir string, sample, epochs int) error {
	if epochs < 1 {
		return errors.Errorf("cam: assemble sample %d: epochs must be > 0 (got %d)", sample, epochs)
	}
	anim := &gif.GIF{}
	for epoch := 1; epoch <= epochs; epoch++ {
		img, err := readFrame(FramePath(resultDir, sample, epoch))
		if err != nil {
			return errors.Wrapf(err, "assemble sample %d epoch %d", sample, epoch)
		}
		anim.Image = append(anim.Image, quantize(img))
		anim.Delay = append(anim.Delay, FrameDelay)
	}

	path := GIFPath(gifDir, sample)
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := gif.EncodeAll(f, anim); err != nil {
		f.Close()
		return errors.Wrapf(err, "encode %s", path)
	}
	return errors.Wrapf(f.Close(), "close %s", path)
}

// AssembleAll runs Assemble for samples 0..samples-1.
func AssembleAll(resultDir, gifDir string, samples, epochs int) error {
	if err := os.MkdirAll(gifDir, 0o755); err != nil {
		return errors.Wrapf(err, "create gif dir %s", gifDir)
	}
	for sample := 0; sample < samples; sample++ {
		if err := Assemble(resultDir, gifDir, sample, epochs); err != nil {
			return err
		}
	}
	return nil
}

func readFrame(path string) (image.Image, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrap(ErrMissingFrame, path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return img, nil
}

func quantize(img image.Image) *image.Paletted {
	b := img.Bounds()
	out := image.NewPaletted(image.Rect(0, 0, b.Dx(), b.Dy()), palette.Plan9)
	draw.FloydSteinberg.Draw(out, out.Bounds(), img, b.Min)
	return out
}
