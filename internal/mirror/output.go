package mirror

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"log/slog"
)

// validateDirectoryPath validates that a directory path is safe for
// sync operations by rejecting parent directory references in
// relative paths.
func validateDirectoryPath(path string) error {
	cleanPath := filepath.Clean(path)

	if !filepath.IsAbs(cleanPath) && strings.Contains(cleanPath, "..") {
		return errors.New("unsafe directory path (contains directory traversal): " + path)
	}

	return nil
}

// dirSync calls fsync(2) on the directory to save changes in the
// directory.
//
// This should be called after os.Create, os.Rename and so on.
func dirSync(d string) error {
	if err := validateDirectoryPath(d); err != nil {
		return errors.Wrap(err, "dirSync")
	}

	f, err := os.OpenFile(d, os.O_RDONLY, 0755) // #nosec G304,G302 - path validated, 0755 needed for directory access
	if err != nil {
		return err
	}
	err = f.Sync()
	if err != nil {
		return err
	}
	return f.Close()
}

// SaveMirrorlist writes the mirrorlist atomically: the lines go to a
// temporary file in the destination directory which is fsynced and
// renamed over the target, so readers observe either the old file or
// the complete new one.
func SaveMirrorlist(path string, lines []string) error {
	dir := filepath.Dir(path)

	tempfile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrap(err, "failed to create mirrorlist temp file")
	}
	defer func() {
		if tempfile != nil {
			closeAndRemoveFile(tempfile)
		}
	}()

	for _, line := range lines {
		if _, err := tempfile.WriteString(line + "\n"); err != nil {
			return errors.Wrap(err, "failed to write mirrorlist")
		}
	}
	if err := tempfile.Sync(); err != nil {
		return errors.Wrap(err, "failed to sync mirrorlist")
	}
	if err := os.Chmod(tempfile.Name(), 0644); err != nil { // #nosec G302 - mirrorlist must be world-readable
		return errors.Wrap(err, "failed to chmod mirrorlist")
	}
	name := tempfile.Name()
	if err := tempfile.Close(); err != nil {
		tempfile = nil
		if rmErr := os.Remove(name); rmErr != nil {
			slog.Warn("failed to remove temp file", "file", name, "error", rmErr)
		}
		return errors.Wrap(err, "failed to close mirrorlist temp file")
	}
	tempfile = nil

	if err := os.Rename(name, path); err != nil {
		if rmErr := os.Remove(name); rmErr != nil {
			slog.Warn("failed to remove temp file", "file", name, "error", rmErr)
		}
		return errors.Wrap(err, "failed to replace mirrorlist")
	}

	return dirSync(dir)
}

// closeAndRemoveFile closes and removes a temporary file.
func closeAndRemoveFile(f *os.File) {
	filename := f.Name()
	if err := f.Close(); err != nil {
		slog.Warn("failed to close temp file", "file", filename, "error", err)
	}
	if err := os.Remove(filename); err != nil {
		slog.Warn("failed to remove temp file", "file", filename, "error", err)
	}
}
