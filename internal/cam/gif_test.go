package cam

import (
	"errors"
	"image/gif"
	"os"
	"testing"
)

func writeFrames(t *testing.T, dir string, sample int, epochs ...int) {
	t.Helper()
	for _, epoch := range epochs {
		if err := SaveJPEG(FramePath(dir, sample, epoch), uniformImage(16, 16, uint8(epoch*40))); err != nil {
			t.Fatalf("save frame: %v", err)
		}
	}
}

func TestAssembleOrderedFrames(t *testing.T) {
	results, gifs := t.TempDir(), t.TempDir()
	writeFrames(t, results, 2, 1, 2, 3)
	if err := Assemble(results, gifs, 2, 3); err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	f, err := os.Open(GIFPath(gifs, 2))
	if err != nil {
		t.Fatalf("open gif: %v", err)
	}
	defer f.Close()
	anim, err := gif.DecodeAll(f)
	if err != nil {
		t.Fatalf("decode gif: %v", err)
	}
	if len(anim.Image) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(anim.Image))
	}
	first, last := anim.Image[0].At(8, 8), anim.Image[2].At(8, 8)
	r0, _, _, _ := first.RGBA()
	r2, _, _, _ := last.RGBA()
	if r0 >= r2 {
		t.Fatalf("frames out of epoch order: %d >= %d", r0, r2)
	}
}

func TestAssembleMissingFrame(t *testing.T) {
	results, gifs := t.TempDir(), t.TempDir()
	writeFrames(t, results, 0, 1, 3)
	err := Assemble(results, gifs, 0, 3)
	if !errors.Is(err, ErrMissingFrame) {
		t.Fatalf("expected ErrMissingFrame, got %v", err)
	}
	if _, statErr := os.Stat(GIFPath(gifs, 0)); !os.IsNotExist(statErr) {
		t.Fatalf("expected no gif to be written, stat err=%v", statErr)
	}
}

func TestAssembleRejectsZeroEpochs(t *testing.T) {
	if err := Assemble(t.TempDir(), t.TempDir(), 0, 0); err == nil {
		t.Fatal("expected error for zero epochs")
	}
}
