package fetcher

import (
	"archive/zip"
	"io"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// WalkZIP opens the archive at zipPath and calls fn for every file whose
// name has the given suffix (case-insensitive; empty matches all).
// Directory entries are skipped. fn receives the entry name and an open
// reader that is closed after fn returns; a non-nil error from fn aborts
// the walk.
func WalkZIP(zipPath, suffix string, fn func(name string, r io.Reader) error) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return eris.Wrapf(err, "zip: open %s", zipPath)
	}
	defer r.Close() //nolint:errcheck

	suffix = strings.ToLower(suffix)
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if suffix != "" && !strings.HasSuffix(strings.ToLower(f.Name), suffix) {
			continue
		}
		if err := walkZIPEntry(f, fn); err != nil {
			return err
		}
	}
	return nil
}

func walkZIPEntry(f *zip.File, fn func(name string, r io.Reader) error) error {
	rc, err := f.Open()
	if err != nil {
		return eris.Wrapf(err, "zip: open entry %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	// Reject entries that escape the archive root.
	if strings.Contains(filepath.ToSlash(f.Name), "../") {
		return eris.Errorf("zip: unsafe entry path %q", f.Name)
	}

	return fn(f.Name, rc)
}
