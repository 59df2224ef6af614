package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// entryTime is stamped on every entry so two runs over the same parts agree.
var entryTime = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

func Name(parts int) string {
	return fmt.Sprintf("storieswall_%dparts.zip", parts)
}

// Create writes files into a deflate zip at dst, in the given order, using
// each file's base name as the entry name.
func Create(fs afero.Fs, dst string, files []string) (err error) {
	if len(files) == 0 {
		return errors.New("archive: nothing to archive")
	}
	seen := make(map[string]struct{}, len(files))
	for _, path := range files {
		name := filepath.Base(path)
		if _, dup := seen[name]; dup {
			return fmt.Errorf("archive: duplicate entry %s", name)
		}
		seen[name] = struct{}{}
	}

	out, err := fs.Create(dst)
	if err != nil {
		return fmt.Errorf("archive: create %s: %w", filepath.Base(dst), err)
	}
	defer func() {
		if closeErr := out.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("archive: close: %w", closeErr)
		}
		if err != nil {
			_ = fs.Remove(dst)
		}
	}()

	zw := zip.NewWriter(out)
	for _, path := range files {
		if err = addFile(fs, zw, path); err != nil {
			return err
		}
	}
	if err = zw.Close(); err != nil {
		return fmt.Errorf("archive: finish: %w", err)
	}
	return nil
}

func addFile(fs afero.Fs, zw *zip.Writer, path string) error {
	src, err := fs.Open(path)
	if err != nil {
		return fmt.Errorf("archive: open %s: %w", filepath.Base(path), err)
	}
	defer src.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     filepath.Base(path),
		Method:   zip.Deflate,
		Modified: entryTime,
	})
	if err != nil {
		return fmt.Errorf("archive: add %s: %w", filepath.Base(path), err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("archive: write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Entries lists entry names in archive order.
func Entries(fs afero.Fs, path string) ([]string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("archive: read %s: %w", filepath.Base(path), err)
	}
	names := make([]string, 0, len(zr.File))
	for _, entry := range zr.File {
		names = append(names, entry.Name)
	}
	return names, nil
}
