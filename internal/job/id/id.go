// Package id provides unique identifier generation for jobs.
package id

import (
	"github.com/google/uuid"
)

// Generate creates a new unique job ID.
// Format: job-<uuid v4>
// Example: job-9b2f3c1e-4d8a-4f6b-9a51-3c2d7e0f1a2b
func Generate() string {
	return "job-" + uuid.NewString()
}

// Valid reports whether s looks like an ID produced by Generate.
func Valid(s string) bool {
	if len(s) <= len("job-") || s[:len("job-")] != "job-" {
		return false
	}
	_, err := uuid.Parse(s[len("job-"):])
	return err == nil
}
