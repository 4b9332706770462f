// Package contract defines the immutable request descriptor handed to the
// download manager, and the bucket-scoped factory that creates them.
package contract

import (
	"maps"

	"github.com/google/uuid"
)

// idLength is the number of uuid characters kept for a contract id.
const idLength = 8

// Contract describes one requested object transfer. Contracts are immutable:
// the factory fills every field at creation and nothing mutates them after.
type Contract struct {
	// ID is an opaque, collision-resistant token identifying the request.
	ID string
	// Bucket is the source bucket name.
	Bucket string
	// Key is the object path inside the bucket.
	Key string
	// Filename is the local destination path for the download.
	Filename string
	// Options carries extra transfer arguments passed through to the
	// storage client (e.g. encryption headers). May be nil.
	Options map[string]string
}

// Factory creates Contracts bound to a single bucket.
type Factory struct {
	bucket string
}

// NewFactory returns a Factory whose contracts all target bucket.
func NewFactory(bucket string) *Factory {
	return &Factory{bucket: bucket}
}

// Bucket returns the bucket this factory is bound to.
func (f *Factory) Bucket() string {
	return f.bucket
}

// New returns a Contract for downloading key to filename. The options map is
// copied so later mutation by the caller cannot reach the contract.
func (f *Factory) New(key, filename string, options map[string]string) Contract {
	var opts map[string]string
	if len(options) > 0 {
		opts = maps.Clone(options)
	}
	return Contract{
		ID:       newID(),
		Bucket:   f.bucket,
		Key:      key,
		Filename: filename,
		Options:  opts,
	}
}

func newID() string {
	return uuid.NewString()[:idLength]
}
