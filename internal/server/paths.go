package server

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutsideMediaRoot is returned for request paths that leave the media root.
var ErrOutsideMediaRoot = errors.New("path is outside the media root")

// mediaRoot confines request paths to one directory tree. Relative paths are
// taken from the root; absolute ones must already lie under it.
type mediaRoot struct {
	dir  string
	real string
}

func newMediaRoot(dir string) mediaRoot {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = filepath.Clean(dir)
	}
	m := mediaRoot{dir: abs, real: abs}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		m.real = real
	}
	return m
}

// resolve returns the absolute, cleaned form of p, or ErrOutsideMediaRoot.
// An empty p stays empty.
func (m mediaRoot) resolve(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(m.dir, p)
	}
	p = filepath.Clean(p)
	if !within(m.dir, p) {
		return "", fmt.Errorf("%w: %s", ErrOutsideMediaRoot, p)
	}

	// Symlinks are followed on the deepest part of p that exists, so an
	// output directory that is not created yet is still checked.
	for dir := p; within(m.dir, dir); dir = filepath.Dir(dir) {
		real, err := filepath.EvalSymlinks(dir)
		if err != nil {
			if dir == m.dir {
				break
			}
			continue
		}
		if !within(m.real, real) {
			return "", fmt.Errorf("%w: %s resolves to %s", ErrOutsideMediaRoot, p, real)
		}
		break
	}
	return p, nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
