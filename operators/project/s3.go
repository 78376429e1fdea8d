package project

import (
	"context"
	"fmt"
	"io"
	"nested-scan-go/config"
	"strings"

	"github.com/minio/minio-go"
)

const s3Scheme = "s3://"

var (
	ErrInvalidS3URI = func(uri string) error {
		return fmt.Errorf("invalid object storage uri %q, expected s3://bucket/key", uri)
	}
	ErrMissingSecrets = func(info string) error {
		return fmt.Errorf("object storage secrets are incomplete: %s", info)
	}
)

// IsS3URI reports whether path names an object in a bucket.
func IsS3URI(path string) bool {
	return strings.HasPrefix(path, s3Scheme)
}

// ParseS3URI splits s3://bucket/key/with/slashes into bucket and key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	if !IsS3URI(uri) {
		return "", "", ErrInvalidS3URI(uri)
	}
	rest := strings.TrimPrefix(uri, s3Scheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", ErrInvalidS3URI(uri)
	}
	return bucket, key, nil
}

// NetworkResource is a remote object usable as a parquet.ReaderAtSeeker.
type NetworkResource struct {
	client *minio.Client
	bucket string
	key    string
	size   int64

	stream *minio.Object
}

func NewS3Client(secrets config.Secrets) (*minio.Client, error) {
	switch {
	case secrets.EndpointURL == "":
		return nil, ErrMissingSecrets("S3_ENDPOINT is not set")
	case secrets.AccessKey == "" || secrets.SecretKey == "":
		return nil, ErrMissingSecrets("S3_ACCESS_KEY and S3_SECRET_KEY must both be set")
	}
	return minio.New(secrets.EndpointURL, secrets.AccessKey, secrets.SecretKey, secrets.UseSSL)
}

// NewStreamReader opens uri for random access reads. The object is stat'ed
// once so a missing object fails here rather than on first read.
func NewStreamReader(ctx context.Context, client *minio.Client, uri string) (*NetworkResource, error) {
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return nil, err
	}
	obj, err := client.GetObjectWithContext(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, fmt.Errorf("failed to stat object %s: %w", uri, err)
	}
	return &NetworkResource{
		client: client,
		bucket: bucket,
		key:    key,
		size:   info.Size,
		stream: obj,
	}, nil
}

func (n *NetworkResource) Size() int64 {
	return n.size
}

func (n *NetworkResource) Read(p []byte) (int, error) {
	return n.stream.Read(p)
}

func (n *NetworkResource) ReadAt(p []byte, off int64) (int, error) {
	if off >= n.size {
		return 0, io.EOF
	}
	return n.stream.ReadAt(p, off)
}

func (n *NetworkResource) Seek(offset int64, whence int) (int64, error) {
	return n.stream.Seek(offset, whence)
}

func (n *NetworkResource) Close() error {
	return n.stream.Close()
}

func (n *NetworkResource) String() string {
	return s3Scheme + n.bucket + "/" + n.key
}
