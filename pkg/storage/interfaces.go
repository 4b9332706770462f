//go:generate mockgen -destination=./mocks/storage.go . Client,Dialer

// Package storage defines the object-storage collaborator used by the
// download scheduler and its gocloud.dev-backed implementation.
package storage

import "context"

// Request describes one object transfer.
type Request struct {
	// Bucket is the source bucket name.
	Bucket string
	// Key is the object path inside the bucket.
	Key string
	// Filename is the local destination path.
	Filename string
	// Options carries extra transfer arguments. Unknown keys are ignored by
	// implementations that do not support them.
	Options map[string]string
	// Progress, when non-nil, is invoked with the count of newly
	// transferred bytes after each chunk is written.
	Progress func(n int64)
}

// Client is one storage connection handle. Handles are not safe for
// concurrent transfers and are owned by exactly one pool connection.
type Client interface {
	// Size returns the content length of bucket/key. Missing objects are
	// reported as ErrNotFound, connectivity failures as ErrTransport.
	Size(ctx context.Context, bucket, key string) (int64, error)

	// Download transfers the object described by req to req.Filename,
	// invoking req.Progress per chunk. Any interruption is reported as
	// ErrTransfer.
	Download(ctx context.Context, req Request) error

	// Close releases the handle.
	Close() error
}

// Dialer constructs independent Client handles, one per pool connection.
type Dialer interface {
	Dial(ctx context.Context) (Client, error)
}
