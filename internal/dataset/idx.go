package dataset

import (
	"bufio"
	"compress/gzip"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const (
	idxImagesMagic = 2051
	idxLabelsMagic = 2049
)

// IDXFile names one gzip-compressed IDX file and its expected sha256
// digest. An empty Digest skips verification.
type IDXFile struct {
	Name   string
	Digest string
}

// IDXPair is the images/labels file pair of one split.
type IDXPair struct {
	Images IDXFile
	Labels IDXFile
}

// MNIST file layout as published.
var (
	MNISTTrain = IDXPair{
		Images: IDXFile{Name: "train-images-idx3-ubyte.gz", Digest: "440fcabf73cc546fa21475e81ea370265605f56be210a4024d2ca8f203523609"},
		Labels: IDXFile{Name: "train-labels-idx1-ubyte.gz", Digest: "3552534a0a558bbed6aed32b30c495cca23d567ec52cac8be1a0730e8010255c"},
	}
	MNISTTest = IDXPair{
		Images: IDXFile{Name: "t10k-images-idx3-ubyte.gz", Digest: "8d422c7b0a1c1c79245a5bcf07fe86e33eeafee792b84584aec276f5a2dbc4e6"},
		Labels: IDXFile{Name: "t10k-labels-idx1-ubyte.gz", Digest: "f7ae60f92e00ec6debd23a6088c31dbd2371eca3ffa0defaefb259924204aec6"},
	}
)

// Files lists both members of the pair.
func (p IDXPair) Files() []IDXFile {
	return []IDXFile{p.Images, p.Labels}
}

// LoadIDX reads one split from dir into a normalized Set.
func LoadIDX(dir string, pair IDXPair) (*Set, error) {
	images, err := readIDXFile(filepath.Join(dir, pair.Images.Name), pair.Images.Digest, readIDXImages)
	if err != nil {
		return nil, err
	}
	labels, err := readIDXFile(filepath.Join(dir, pair.Labels.Name), pair.Labels.Digest, readIDXLabels)
	if err != nil {
		return nil, err
	}
	if len(images) != len(labels) {
		return nil, errors.Errorf("idx: %d images but %d labels in %s", len(images), len(labels), dir)
	}
	set := &Set{}
	for i, raw := range images {
		set.Append(NormalizeBytes(raw), int(labels[i]))
	}
	return set, nil
}

func readIDXFile[T any](path, digest string, parse func(io.Reader) (T, error)) (T, error) {
	var zero T
	if digest != "" {
		if err := verifyDigest(path, digest); err != nil {
			return zero, err
		}
	}
	f, err := os.Open(path)
	if err != nil {
		return zero, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	gz, err := gzip.NewReader(bufio.NewReader(f))
	if err != nil {
		return zero, errors.Wrapf(err, "gunzip %s", path)
	}
	defer gz.Close()
	out, err := parse(gz)
	if err != nil {
		return zero, errors.Wrapf(err, "parse %s", path)
	}
	return out, nil
}

func verifyDigest(path, want string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return errors.Wrapf(err, "hash %s", path)
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != want {
		return errors.Errorf("idx: digest mismatch for %s: got %s want %s", path, got, want)
	}
	return nil
}

func readIDXImages(r io.Reader) ([][]byte, error) {
	var hdr struct {
		Magic, Count, Rows, Cols uint32
	}
	if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
		return nil, errors.Wrap(err, "read image header")
	}
	if hdr.Magic != idxImagesMagic {
		return nil, errors.Errorf("bad image magic %d", hdr.Magic)
	}
	if hdr.Rows != ImageSize || hdr.Cols != ImageSize {
		return nil, errors.Errorf("images are %dx%d, want %dx%d", hdr.Rows, hdr.Cols, ImageSize, ImageSize)
	}
	size := int(hdr.Rows * hdr.Cols)
	images := make([][]byte, hdr.Count)
	for i := range images {
		images[i] = make([]byte, size)
		if _, err := io.ReadFull(r, images[i]); err != nil {
			return nil, errors.Wrapf(err, "read image %d", i)
		}
	}
	return images, nil
}

func readIDXLabels(r io.Reader) ([]byte, error) {
	var hdr struct {
		Magic, Count uint32
	}
	if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
		return nil, errors.Wrap(err, "read label header")
	}
	if hdr.Magic != idxLabelsMagic {
		return nil, errors.Errorf("bad label magic %d", hdr.Magic)
	}
	labels := make([]byte, hdr.Count)
	if _, err := io.ReadFull(r, labels); err != nil {
		return nil, errors.Wrap(err, "read labels")
	}
	return labels, nil
}
