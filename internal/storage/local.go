package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
)

// ErrS3NotConfigured is returned when S3 operations are attempted
// without proper configuration.
var ErrS3NotConfigured = errors.New("S3 storage is not configured")

// LocalStorage implements the Storage interface using local disk.
// It creates scratch directories under a configurable root and does not
// support S3 operations unless wrapped with S3Storage.
type LocalStorage struct {
	tempDir  string
	keepTemp bool
}

// NewLocalStorage creates a new LocalStorage instance.
// The tempDir parameter is the root for scratch directories.
// If tempDir is empty, os.TempDir()/delayfix is used.
// The directory is created if it doesn't exist.
func NewLocalStorage(tempDir string) (*LocalStorage, error) {
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "delayfix")
	}

	if err := os.MkdirAll(tempDir, 0750); err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}

	return &LocalStorage{tempDir: tempDir}, nil
}

// TempDir returns the root of the scratch directories.
func (s *LocalStorage) TempDir() string {
	return s.tempDir
}

// SetKeepTemp makes Scratch.Cleanup leave files in place for inspection.
func (s *LocalStorage) SetKeepTemp(keep bool) {
	s.keepTemp = keep
}

// NewScratch creates a uniquely named directory below TempDir.
func (s *LocalStorage) NewScratch(ctx context.Context, label string) (*Scratch, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	dir, err := os.MkdirTemp(s.tempDir, label+"_*")
	if err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}
	return &Scratch{dir: dir, keep: s.keepTemp}, nil
}

// Publish moves src to destDir/name. It falls back to copy and remove when
// a rename is not possible, e.g. across file systems.
func (s *LocalStorage) Publish(ctx context.Context, src, destDir, name string) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	if err := os.MkdirAll(destDir, 0750); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	dst := filepath.Join(destDir, name)

	if err := os.Rename(src, dst); err == nil {
		return dst, nil
	}

	if err := copyFile(src, dst); err != nil {
		return "", err
	}
	if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("remove published source: %w", err)
	}
	return dst, nil
}

// UploadToS3 is not supported by LocalStorage and returns ErrS3NotConfigured.
func (s *LocalStorage) UploadToS3(_ context.Context, _ string, _ io.Reader) (string, error) {
	return "", ErrS3NotConfigured
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 - src is a scratch file created by this process
	if err != nil {
		return fmt.Errorf("open source file: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst) // #nosec G304 - dst is chosen by the caller
	if err != nil {
		return fmt.Errorf("create destination file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("copy file: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("close destination file: %w", err)
	}
	return nil
}

// Scratch is the scratch directory of one run. Files named through Path get
// a sequence prefix, so repeated names never collide.
type Scratch struct {
	dir  string
	seq  atomic.Int64
	keep bool
}

// Dir returns the scratch directory.
func (s *Scratch) Dir() string {
	return s.dir
}

// Path returns a new, unique file path inside the scratch directory.
func (s *Scratch) Path(name string) string {
	n := s.seq.Add(1)
	return filepath.Join(s.dir, fmt.Sprintf("%03d_%s", n, name))
}

// Cleanup removes the scratch directory unless temp files are kept.
func (s *Scratch) Cleanup() error {
	if s.keep {
		return nil
	}
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("remove scratch directory %s: %w", s.dir, err)
	}
	return nil
}

// Kept reports whether Cleanup leaves the directory in place.
func (s *Scratch) Kept() bool {
	return s.keep
}
