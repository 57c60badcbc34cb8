package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MirrorOptions configures an S3-compatible bucket that receives a copy of
// every published asset.
type MirrorOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// Mirror copies published assets into an object store, e.g. for a second
// frame or an off-box gallery. The local FileStore stays authoritative.
type Mirror struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMirror creates the object-store client. It does not touch the network.
func NewMirror(opts MirrorOptions) (*Mirror, error) {
	if strings.TrimSpace(opts.Endpoint) == "" {
		return nil, errors.New("storage: mirror endpoint is required")
	}
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("storage: mirror bucket is required")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: create mirror client: %w", err)
	}
	return &Mirror{
		client: client,
		bucket: opts.Bucket,
		prefix: strings.Trim(opts.Prefix, "/"),
	}, nil
}

// EnsureBucket creates the bucket if it does not exist.
func (m *Mirror) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("storage: check bucket %s: %w", m.bucket, err)
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("storage: create bucket %s: %w", m.bucket, err)
		}
	}
	return nil
}

// Put uploads data under key.
func (m *Mirror) Put(ctx context.Context, key string, data []byte, contentType string) error {
	objectKey, err := m.objectKey(key)
	if err != nil {
		return err
	}
	_, err = m.client.PutObject(ctx, m.bucket, objectKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("storage: mirror %s: %w", objectKey, err)
	}
	return nil
}

// Delete removes key from the bucket.
func (m *Mirror) Delete(ctx context.Context, key string) error {
	objectKey, err := m.objectKey(key)
	if err != nil {
		return err
	}
	if err := m.client.RemoveObject(ctx, m.bucket, objectKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("storage: mirror delete %s: %w", objectKey, err)
	}
	return nil
}

func (m *Mirror) objectKey(key string) (string, error) {
	clean, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	if m.prefix == "" {
		return clean, nil
	}
	return m.prefix + "/" + clean, nil
}
