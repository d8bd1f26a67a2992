// Package storage persists run artifacts (summary, interval database,
// latency trace) to a local directory or an S3 bucket, so the test
// automation that launched the run can collect results afterwards.
package storage

import (
	"context"
	"errors"
)

// Common errors for artifact operations.
var (
	ErrArtifactNotFound = errors.New("artifact not found")
	ErrUploadFailed     = errors.New("upload failed")
	ErrDownloadFailed   = errors.New("download failed")
)

// ArtifactStore abstracts where run artifacts land.
// Implementations: local filesystem and S3.
type ArtifactStore interface {
	// Put uploads the local file at localPath under key.
	Put(ctx context.Context, localPath, key string) error

	// Get downloads the artifact at key to localPath.
	Get(ctx context.Context, key, localPath string) error

	// Exists checks whether an artifact exists.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns all artifact keys under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
