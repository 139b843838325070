package dataset

import (
	"image"
	"image/color"
	"math"
	"math/rand"
	"testing"
)

func TestBatchesCoverEveryIndexOnce(t *testing.T) {
	set := &Set{}
	for i := 0; i < 10; i++ {
		set.Append([]float64{float64(i)}, i)
	}
	batches := set.Batches(rand.New(rand.NewSource(1)), 4)
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	if len(batches[2]) != 2 {
		t.Fatalf("expected short last batch, got %d", len(batches[2]))
	}
	seen := make(map[int]bool)
	for _, b := range batches {
		for _, idx := range b {
			if seen[idx] {
				t.Fatalf("index %d repeated", idx)
			}
			seen[idx] = true
		}
	}
	if len(seen) != 10 {
		t.Fatalf("expected 10 indices, got %d", len(seen))
	}
}

func TestBatchesUnshuffledKeepsOrder(t *testing.T) {
	set := &Set{}
	for i := 0; i < 3; i++ {
		set.Append([]float64{0}, i)
	}
	batches := set.Batches(nil, 2)
	images, labels := set.Gather(batches[0])
	if len(images) != 2 || labels[0] != 0 || labels[1] != 1 {
		t.Fatalf("unexpected first batch labels %v", labels)
	}
}

func TestPreprocessResizes(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 56, 56))
	for y := 0; y < 56; y++ {
		for x := 0; x < 56; x++ {
			img.Set(x, y, color.White)
		}
	}
	input := Preprocess(img)
	if len(input) != ImageSize*ImageSize {
		t.Fatalf("expected %d values, got %d", ImageSize*ImageSize, len(input))
	}
	if math.Abs(input[0]-NormalizePixel(255)) > 1/(255*Std)+1e-9 {
		t.Fatalf("unexpected value %f", input[0])
	}
}
