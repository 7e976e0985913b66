package interfaces

import (
	"context"
	"errors"
)

// ErrBlobNotFound is returned when a blob name is not present in storage
var ErrBlobNotFound = errors.New("blob not found")

// BlobStorage defines operations for named byte blobs with string metadata.
// Blobs carry the pipeline's artifacts between stages: uploaded inputs,
// converted markdown, chunk JSONL, and index backups.
type BlobStorage interface {
	// Put stores data under name and returns the stored name. Re-putting
	// the same name overwrites, which keeps stage handlers repeat-safe
	// under at-least-once delivery.
	Put(ctx context.Context, name string, data []byte, metadata map[string]string) (string, error)

	// Get retrieves blob bytes, returning ErrBlobNotFound for unknown names
	Get(ctx context.Context, name string) ([]byte, error)

	// GetMetadata retrieves the metadata stored alongside a blob
	GetMetadata(ctx context.Context, name string) (map[string]string, error)

	// Delete removes a blob and its metadata
	Delete(ctx context.Context, name string) error

	// List returns all blob names with the given prefix, sorted
	List(ctx context.Context, prefix string) ([]string, error)
}
