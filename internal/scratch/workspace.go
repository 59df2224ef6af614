package scratch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

const (
	SourceName = "source_image"
	OutputDir  = "output"
)

var ErrOutsideRoot = errors.New("scratch: path is outside the workspace root")

// Workspace owns the root under which every creation attempt gets its own
// directory. Nothing below the root survives a restart.
type Workspace struct {
	fs     afero.Fs
	root   string
	logger zerolog.Logger
}

func New(fs afero.Fs, root string, logger zerolog.Logger) (*Workspace, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("scratch: root is required")
	}
	root = filepath.Clean(root)
	if err := fs.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("scratch: ensure root: %w", err)
	}
	return &Workspace{
		fs:     fs,
		root:   root,
		logger: logger.With().Str("component", "scratch").Logger(),
	}, nil
}

func (w *Workspace) Fs() afero.Fs {
	return w.fs
}

func (w *Workspace) Root() string {
	return w.root
}

// Create makes a fresh directory for one attempt of userID.
func (w *Workspace) Create(userID int64) (string, error) {
	dir := filepath.Join(w.root, fmt.Sprintf("user_%d_%s", userID, uuid.NewString()))
	if err := w.fs.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("scratch: create dir: %w", err)
	}
	return dir, nil
}

func SourcePath(dir string) string {
	return filepath.Join(dir, SourceName)
}

func OutputPath(dir string) string {
	return filepath.Join(dir, OutputDir)
}

func (w *Workspace) contains(dir string) bool {
	rel, err := filepath.Rel(w.root, filepath.Clean(dir))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Remove deletes dir and everything in it. A missing directory is not an error.
func (w *Workspace) Remove(dir string) error {
	if !w.contains(dir) {
		return fmt.Errorf("%w: %s", ErrOutsideRoot, dir)
	}
	if _, err := w.fs.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			w.logger.Debug().Str("dir", dir).Msg("scratch dir already gone")
			return nil
		}
		return fmt.Errorf("scratch: stat: %w", err)
	}
	if err := w.fs.RemoveAll(dir); err != nil {
		return fmt.Errorf("scratch: remove: %w", err)
	}
	w.logger.Info().Str("dir", dir).Msg("scratch dir removed")
	return nil
}

// Discard is Remove for callers that can only log the failure.
func (w *Workspace) Discard(dir string) {
	if err := w.Remove(dir); err != nil {
		w.logger.Error().Err(err).Str("dir", dir).Msg("scratch dir cleanup failed")
	}
}

// Guard returns a func that discards dir the first time it is called and
// does nothing afterwards.
func (w *Workspace) Guard(dir string) func() {
	var once sync.Once
	return func() {
		once.Do(func() { w.Discard(dir) })
	}
}

// Purge removes every entry under the root and reports how many were removed.
func (w *Workspace) Purge() (int, error) {
	entries, err := afero.ReadDir(w.fs, w.root)
	if err != nil {
		return 0, fmt.Errorf("scratch: list root: %w", err)
	}
	removed := 0
	for _, entry := range entries {
		path := filepath.Join(w.root, entry.Name())
		if err := w.fs.RemoveAll(path); err != nil {
			w.logger.Error().Err(err).Str("dir", path).Msg("purge leftover failed")
			continue
		}
		removed++
	}
	if removed > 0 {
		w.logger.Info().Int("removed", removed).Msg("purged leftovers from a previous run")
	}
	return removed, nil
}
