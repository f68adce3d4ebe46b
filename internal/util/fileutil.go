package util

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

const tmpSuffix = ".relaysync.tmp"

// KeepMode as perm keeps the mode of an existing file, or 0644 for a new one.
const KeepMode = ^os.FileMode(0)

// AtomicWrite streams write's output into a temporary sibling of dst and
// renames it over dst once write succeeds. Any perm other than KeepMode is
// applied as given, 0 included.
func AtomicWrite(fs afero.Fs, dst string, perm os.FileMode, write func(io.Writer) error) error {
	if err := fs.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create parent dir: %w", err)
	}

	if perm == KeepMode {
		perm = 0644
		if info, err := fs.Stat(dst); err == nil && info.Mode().IsRegular() {
			perm = info.Mode().Perm()
		}
	}

	tmp := dst + tmpSuffix
	f, err := fs.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if err := write(f); err != nil {
		_ = f.Close()
		_ = fs.Remove(tmp)
		return fmt.Errorf("failed to write: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := fs.Chmod(tmp, perm); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}

	if err := fs.Rename(tmp, dst); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("failed to rename: %w", err)
	}

	return nil
}

func RemoveIfExists(fs afero.Fs, path string) error {
	if err := fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}

	return nil
}
