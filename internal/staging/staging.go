// Package staging owns the per-run directory where job files are written
// before they are renamed into place.
package staging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/ligustah/wmd/internal/dump"
)

// DirName is the directory below the output root holding staging areas.
// Configuration rejects dump names starting with an underscore, so it cannot
// collide with output.
const DirName = "_temp"

// Area is a temporary directory exclusively owned by one run.
type Area struct {
	fs       afero.Fs
	parent   string
	dir      string
	keep     bool
	disposed bool
	log      *slog.Logger
}

// Create makes a fresh staging directory below outputRoot. With keep set,
// Dispose leaves the directory in place for inspection.
func Create(fs afero.Fs, outputRoot string, keep bool, logger *slog.Logger) (*Area, error) {
	if logger == nil {
		logger = slog.Default()
	}

	parent := filepath.Join(outputRoot, DirName)
	dir := filepath.Join(parent, "run-"+uuid.NewString())

	// A concurrent run disposing of its own area may remove an empty parent
	// between MkdirAll and Mkdir. One retry recreates it.
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = mkdirArea(fs, parent, dir)
		if err == nil || !os.IsNotExist(err) {
			break
		}
		logger.Debug("Staging parent vanished, retrying", slog.String("dir", parent))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dump.ErrStagingCreateFailed, err)
	}

	a := &Area{
		fs:     fs,
		parent: parent,
		dir:    dir,
		keep:   keep,
		log:    logger.With(slog.String("component", "staging"), slog.String("dir", dir)),
	}
	a.log.Debug("Created staging directory", slog.Bool("keep", keep))
	return a, nil
}

func mkdirArea(fs afero.Fs, parent, dir string) error {
	if err := fs.MkdirAll(parent, 0o755); err != nil {
		return err
	}
	if _, err := fs.Stat(dir); err == nil {
		return fmt.Errorf("%s already exists", dir)
	}
	return fs.Mkdir(dir, 0o755)
}

// Dir returns the staging directory.
func (a *Area) Dir() string {
	return a.dir
}

// PathFor returns the staging path for a job file name.
func (a *Area) PathFor(name string) string {
	return filepath.Join(a.dir, filepath.Base(name))
}

// Dispose removes the staging directory, or keeps it when retention was
// requested. It returns the retained path ("" when removed) and is safe to
// call more than once.
func (a *Area) Dispose() (string, error) {
	if a.disposed {
		if a.keep {
			return a.dir, nil
		}
		return "", nil
	}
	a.disposed = true

	if a.keep {
		a.log.Info("Keeping staging directory")
		return a.dir, nil
	}

	if err := a.fs.RemoveAll(a.dir); err != nil {
		return "", fmt.Errorf("remove staging directory: %w", err)
	}
	// Other runs may still be using the parent.
	if empty, err := afero.IsEmpty(a.fs, a.parent); err == nil && empty {
		if err := a.fs.Remove(a.parent); err != nil && !os.IsNotExist(err) {
			a.log.Debug("Staging parent not removed", slog.Any("error", err))
		}
	}
	a.log.Debug("Removed staging directory")
	return "", nil
}
