package storage

import "fmt"

// Error kinds surfaced by storage clients.
var (
	ErrNotFound       = fmt.Errorf("object not found")
	ErrTransport      = fmt.Errorf("storage transport error")
	ErrTransfer       = fmt.Errorf("transfer interrupted")
	ErrBucketMismatch = fmt.Errorf("bucket not bound to this client")
	ErrInvalidOptions = fmt.Errorf("invalid storage options")
)
