// Package storage provides per-run scratch space, publishing of finished
// files and optional S3 delivery. It defines the Storage interface (port) with
// implementations for local disk and S3.
package storage

import (
	"context"
	"io"
)

// Storage defines where a correction keeps its intermediate files and where
// the finished file ends up.
type Storage interface {
	// NewScratch creates a fresh scratch directory for one run. The label is
	// used as a hint for the directory name.
	NewScratch(ctx context.Context, label string) (*Scratch, error)

	// Publish moves src into destDir under name and returns the final path.
	// An existing file with the same name is overwritten.
	Publish(ctx context.Context, src, destDir, name string) (string, error)

	// UploadToS3 uploads data to S3 and returns the public URL.
	// Returns ErrS3NotConfigured if S3 is not configured.
	UploadToS3(ctx context.Context, key string, data io.Reader) (url string, err error)
}
