package receiver

import (
	"fmt"
	"os"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/spf13/afero"
)

// Resolver maps request paths onto the receiver root. Symlinks are evaluated
// inside the root, so no request path can leave it.
type Resolver struct {
	root string
	vfs  securejoin.VFS
}

func NewResolver(fs afero.Fs, root string) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid receiver root: %w", err)
	}

	return &Resolver{
		root: abs,
		vfs:  aferoVFS{fs: fs},
	}, nil
}

func (r *Resolver) Root() string {
	return r.root
}

func (r *Resolver) Resolve(p string) (string, error) {
	resolved, err := securejoin.SecureJoinVFS(r.root, filepath.FromSlash(p), r.vfs)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", p, err)
	}

	return resolved, nil
}

type aferoVFS struct {
	fs afero.Fs
}

func (v aferoVFS) Lstat(name string) (os.FileInfo, error) {
	if l, ok := v.fs.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(name)
		return info, err
	}

	return v.fs.Stat(name)
}

func (v aferoVFS) Readlink(name string) (string, error) {
	if r, ok := v.fs.(afero.LinkReader); ok {
		return r.ReadlinkIfPossible(name)
	}

	return "", &os.PathError{Op: "readlink", Path: name, Err: afero.ErrNoReadlink}
}
