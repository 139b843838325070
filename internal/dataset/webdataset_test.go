package dataset

import (
	"archive/tar"
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestStreamShardPairsEntries(t *testing.T) {
	shard := writeShard(t, t.TempDir(), []shardEntry{
		{key: "000001", ext: ".png", image: digitPNG(t, 0), label: 3},
		{key: "000002", ext: ".png", image: digitPNG(t, 255), label: 7},
	})

	samplesCh, errCh := StreamShard(context.Background(), shard, 4)
	var samples []Sample
	for sample := range samplesCh {
		samples = append(samples, sample)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("StreamShard returned error: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	if samples[0].Key != "000001" || samples[0].Label != 3 {
		t.Fatalf("unexpected first sample %s/%d", samples[0].Key, samples[0].Label)
	}
}

func TestStreamShardIncomplete(t *testing.T) {
	buf := &bytes.Buffer{}
	tw := tar.NewWriter(buf)
	addTarEntry(t, tw, "000001.cls", []byte("4"))
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	shard := filepath.Join(t.TempDir(), "shard-000000.tar")
	if err := os.WriteFile(shard, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write shard: %v", err)
	}

	samplesCh, errCh := StreamShard(context.Background(), shard, 4)
	for range samplesCh {
		t.Fatal("unexpected sample")
	}
	if err := <-errCh; err == nil {
		t.Fatal("expected incomplete sample error")
	}
}

func TestLoadShardsNormalizes(t *testing.T) {
	dir := t.TempDir()
	shard := writeShard(t, dir, []shardEntry{
		{key: "a", ext: ".png", image: digitPNG(t, 255), label: 1},
		{key: "b", ext: ".png", image: digitPNG(t, 0), label: 2},
	})
	set, err := LoadShards(context.Background(), []string{shard})
	if err != nil {
		t.Fatalf("LoadShards: %v", err)
	}
	if set.Len() != 2 {
		t.Fatalf("expected 2 samples, got %d", set.Len())
	}
	if len(set.Images[0]) != ImageSize*ImageSize {
		t.Fatalf("unexpected image length %d", len(set.Images[0]))
	}
	want := (1 - Mean) / Std
	if math.Abs(set.Images[0][0]-want) > 1e-9 {
		t.Fatalf("white pixel normalized to %f want %f", set.Images[0][0], want)
	}
	if set.Labels[1] != 2 {
		t.Fatalf("unexpected label %d", set.Labels[1])
	}
}

type shardEntry struct {
	key   string
	ext   string
	image []byte
	label int
}

func writeShard(t *testing.T, dir string, entries []shardEntry) string {
	t.Helper()
	buf := &bytes.Buffer{}
	tw := tar.NewWriter(buf)
	for _, e := range entries {
		addTarEntry(t, tw, e.key+e.ext, e.image)
		addTarEntry(t, tw, e.key+".cls", []byte(strconv.Itoa(e.label)))
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	path := filepath.Join(dir, "shard-000000.tar")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write shard: %v", err)
	}
	return path
}

func addTarEntry(t *testing.T, tw *tar.Writer, name string, data []byte) {
	t.Helper()
	hdr := &tar.Header{Name: name, Size: int64(len(data)), Mode: 0o644}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if _, err := tw.Write(data); err != nil {
		t.Fatalf("write data: %v", err)
	}
}

func digitPNG(t *testing.T, fill uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, ImageSize, ImageSize))
	for i := range img.Pix {
		img.Pix[i] = fill
	}
	img.SetGray(0, 0, color.Gray{Y: fill})
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}
