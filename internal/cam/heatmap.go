package cam

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Compositing defaults. The weights sum to 0.8, so frames are darker than
// their source.
const (
	HeatWeight  = 0.3
	ImageWeight = 0.5
	DisplaySize = 224
	JPEGQuality = 95
)

// Jet maps an intensity onto the jet color map: dark blue at 0 through
// cyan, green and yellow to dark red at 255.
func Jet(v uint8) color.RGBA {
	x := float64(v) / 255
	return color.RGBA{R: jetChannel(x, 0.75), G: jetChannel(x, 0.5), B: jetChannel(x, 0.25), A: 255}
}

func jetChannel(x, center float64) uint8 {
	v := 1.5 - math.Abs(4*(x-center))
	v = math.Max(0, math.Min(1, v))
	return uint8(v*255 + 0.5)
}

// Compositor blends intensity maps over source images. Both resizes use
// bilinear interpolation.
type Compositor struct {
	HeatWeight  float64
	ImageWeight float64
	// Size is the side of the square output frame.
	Size int

	Face       font.Face
	TextColor  color.Color
	TextOrigin image.Point // baseline start
	Thickness  int
}

// NewCompositor returns a Compositor with the default weights, a 224x224
// frame and a 2px yellow caption at (0, 30).
func NewCompositor() *Compositor {
	return &Compositor{
		HeatWeight:  HeatWeight,
		ImageWeight: ImageWeight,
		Size:        DisplaySize,
		Face:        basicfont.Face7x13,
		TextColor:   color.RGBA{R: 255, G: 255, A: 255},
		TextOrigin:  image.Pt(0, 30),
		Thickness:   2,
	}
}

// Compose upsamples intensity to the source resolution, colorizes it,
// blends it with src, resizes to Size x Size and draws caption. A nil
// intensity contributes no heat, leaving only the darkened source.
func (c *Compositor) Compose(intensity *image.Gray, src image.Image, caption string) *image.RGBA {
	sb := src.Bounds()
	base := image.NewRGBA(image.Rect(0, 0, sb.Dx(), sb.Dy()))
	draw.Draw(base, base.Bounds(), src, sb.Min, draw.Src)

	var heat *image.Gray
	if intensity != nil {
		heat = image.NewGray(base.Bounds())
		draw.BiLinear.Scale(heat, heat.Bounds(), intensity, intensity.Bounds(), draw.Src, nil)
	}

	for y := 0; y < base.Rect.Dy(); y++ {
		for x := 0; x < base.Rect.Dx(); x++ {
			var hc color.RGBA
			if heat != nil {
				hc = Jet(heat.GrayAt(x, y).Y)
			}
			i := base.PixOffset(x, y)
			base.Pix[i+0] = c.blend(hc.R, base.Pix[i+0])
			base.Pix[i+1] = c.blend(hc.G, base.Pix[i+1])
			base.Pix[i+2] = c.blend(hc.B, base.Pix[i+2])
			base.Pix[i+3] = 0xff
		}
	}

	out := image.NewRGBA(image.Rect(0, 0, c.Size, c.Size))
	draw.BiLinear.Scale(out, out.Bounds(), base, base.Bounds(), draw.Src, nil)
	c.drawCaption(out, caption)
	return out
}

func (c *Compositor) blend(heat, img uint8) uint8 {
	v := float64(heat)*c.HeatWeight + float64(img)*c.ImageWeight
	return uint8(math.Max(0, math.Min(255, v)))
}

func (c *Compositor) drawCaption(dst draw.Image, caption string) {
	if caption == "" || c.Face == nil {
		return
	}
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(c.TextColor), Face: c.Face}
	thickness := max(c.Thickness, 1)
	for dy := 0; dy < thickness; dy++ {
		for dx := 0; dx < thickness; dx++ {
			d.Dot = fixed.P(c.TextOrigin.X+dx, c.TextOrigin.Y+dy)
			d.DrawString(caption)
		}
	}
}

// Caption formats the overlay text for a sample and its class probability.
func Caption(sample int, prob float64) string {
	return fmt.Sprintf("%d Prob: %s", sample, strconv.FormatFloat(prob, 'g', -1, 32))
}

// FramePath names the frame of sample at epoch.
func FramePath(dir string, sample, epoch int) string {
	return filepath.Join(dir, fmt.Sprintf("cam_%d_%d.jpg", sample, epoch))
}

// GIFPath names the animation of sample.
func GIFPath(dir string, sample int) string {
	return filepath.Join(dir, fmt.Sprintf("cam_%d.gif", sample))
}

// SaveJPEG writes img to path.
func SaveJPEG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create frame %s", path)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		f.Close()
		return errors.Wrapf(err, "encode frame %s", path)
	}
	return errors.Wrapf(f.Close(), "close frame %s", path)
}
