package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	s3v2 "github.com/aws/aws-sdk-go-v2/service/s3"
	"gocloud.dev/blob"
	"gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"

	pkgerrors "github.com/kmoussa/spacegrab/pkg/errors"
	"github.com/kmoussa/spacegrab/pkg/fsutil"
)

// defaultChunkSize is the copy buffer size; the progress callback fires once
// per chunk written.
const defaultChunkSize = 1 << 20

// Options configure access to an S3-compatible Spaces bucket.
type Options struct {
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	// Endpoint is the S3-compatible endpoint URL. Empty means AWS S3.
	Endpoint string
	// ChunkSize overrides the copy buffer size. 0 means 1MiB.
	ChunkSize int64
}

// SpacesDialer opens independent bucket handles from shared options. Each
// pool connection dials its own handle so no client is shared across
// workers.
type SpacesDialer struct {
	opts Options
}

// NewDialer returns a Dialer for the configured bucket.
func NewDialer(opts Options) *SpacesDialer {
	return &SpacesDialer{opts: opts}
}

// Dial opens a new bucket handle.
func (d *SpacesDialer) Dial(ctx context.Context) (Client, error) {
	if d.opts.Bucket == "" {
		return nil, pkgerrors.Wrap(ErrInvalidOptions, "bucket name is required")
	}
	if d.opts.AccessKey == "" || d.opts.SecretKey == "" {
		return nil, pkgerrors.Wrap(ErrInvalidOptions, "access and secret keys are required")
	}

	cfg := aws.Config{
		Region:      d.opts.Region,
		Credentials: credentials.NewStaticCredentialsProvider(d.opts.AccessKey, d.opts.SecretKey, ""),
	}
	s3Client := s3v2.NewFromConfig(cfg, func(o *s3v2.Options) {
		if d.opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(d.opts.Endpoint)
		}
		o.UsePathStyle = true
	})

	bucket, err := s3blob.OpenBucketV2(ctx, s3Client, d.opts.Bucket, nil)
	if err != nil {
		return nil, pkgerrors.Wrapf(ErrTransport, "open bucket %s: %v", d.opts.Bucket, err)
	}

	return NewClient(bucket, d.opts.Bucket, d.opts.ChunkSize), nil
}

// SpacesClient is a Client bound to one opened bucket handle.
type SpacesClient struct {
	bucket    *blob.Bucket
	name      string
	chunkSize int64
}

// NewClient wraps an opened bucket as a Client. name must be the bucket's
// name; requests naming a different bucket are rejected. Exported so tests
// can back a client with memblob.
func NewClient(bucket *blob.Bucket, name string, chunkSize int64) *SpacesClient {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &SpacesClient{bucket: bucket, name: name, chunkSize: chunkSize}
}

// Size returns the content length of bucket/key.
func (c *SpacesClient) Size(ctx context.Context, bucket, key string) (int64, error) {
	if bucket != c.name {
		return 0, pkgerrors.Wrapf(ErrBucketMismatch, "have %s, want %s", c.name, bucket)
	}

	attrs, err := c.bucket.Attributes(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return 0, pkgerrors.Wrapf(ErrNotFound, "%s/%s", bucket, key)
		}
		return 0, pkgerrors.Wrapf(ErrTransport, "attributes %s/%s: %v", bucket, key, err)
	}
	return attrs.Size, nil
}

// Download streams the object to req.Filename. The object is written to a
// temp file next to the destination and moved into place once complete, so
// an interrupted transfer never leaves a partial file at req.Filename.
func (c *SpacesClient) Download(ctx context.Context, req Request) error {
	if req.Bucket != c.name {
		return pkgerrors.Wrapf(ErrBucketMismatch, "have %s, want %s", c.name, req.Bucket)
	}

	reader, err := c.bucket.NewReader(ctx, req.Key, nil)
	if err != nil {
		return pkgerrors.Wrapf(ErrTransfer, "open %s/%s: %v", req.Bucket, req.Key, err)
	}
	defer reader.Close()

	dir := filepath.Dir(req.Filename)
	if err := fsutil.EnsureDir(dir); err != nil {
		return pkgerrors.Wrap(ErrTransfer, err.Error())
	}

	tmp, err := os.CreateTemp(dir, "dl-*.tmp")
	if err != nil {
		return pkgerrors.Wrapf(ErrTransfer, "create temp file: %v", err)
	}
	tmpPath := tmp.Name()

	if err := c.copyChunks(tmp, reader, req.Progress); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return pkgerrors.Wrapf(ErrTransfer, "%s/%s: %v", req.Bucket, req.Key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return pkgerrors.Wrapf(ErrTransfer, "close temp file: %v", err)
	}

	if err := fsutil.Move(tmpPath, req.Filename); err != nil {
		_ = os.Remove(tmpPath)
		return pkgerrors.Wrap(ErrTransfer, err.Error())
	}
	if err := os.Chmod(req.Filename, fsutil.FileModeDefault); err != nil {
		return pkgerrors.Wrapf(ErrTransfer, "set permissions: %v", err)
	}
	return nil
}

func (c *SpacesClient) copyChunks(dst io.Writer, src io.Reader, progress func(int64)) error {
	buf := make([]byte, c.chunkSize)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				return fmt.Errorf("write: %w", writeErr)
			}
			if progress != nil {
				progress(int64(n))
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("read: %w", readErr)
		}
	}
}

// Close releases the bucket handle.
func (c *SpacesClient) Close() error {
	return c.bucket.Close()
}
