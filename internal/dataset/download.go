package dataset

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// DefaultMirror hosts the gzip IDX files under their published names.
const DefaultMirror = "https://ossci-datasets.s3.amazonaws.com/mnist/"

// EnsureIDX downloads every file of pairs missing from dir. Files already
// present are left alone; LoadIDX verifies them.
func EnsureIDX(ctx context.Context, dir, mirror string, pairs ...IDXPair) error {
	if mirror == "" {
		mirror = DefaultMirror
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create data dir %s", dir)
	}
	for _, pair := range pairs {
		for _, file := range pair.Files() {
			path := filepath.Join(dir, file.Name)
			if _, err := os.Stat(path); err == nil {
				continue
			}
			url := mirror + file.Name
			log.Printf("download url=%s dest=%s", url, path)
			if err := download(ctx, url, path); err != nil {
				return err
			}
		}
	}
	return nil
}

func download(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrapf(err, "request %s", url)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "fetch %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("fetch %s: status %s", url, resp.Status)
	}

	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrapf(err, "create %s", tmp)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrapf(err, "write %s", tmp)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "close %s", tmp)
	}
	return errors.Wrapf(os.Rename(tmp, path), "rename %s", tmp)
}
