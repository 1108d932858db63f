package storage

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Minio stores blobs as objects in a single bucket.
type Minio struct {
	client *minio.Client
	bucket string
}

// MinioOptions configures the MinIO store.
type MinioOptions struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// NewMinio connects to the object store and ensures the bucket exists.
func NewMinio(ctx context.Context, opts MinioOptions) (*Minio, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect minio: %w", err)
	}
	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &Minio{client: client, bucket: opts.Bucket}, nil
}

// Save uploads the blob, suffixing the object name when it is taken.
// Object stores have no O_EXCL; the stat-then-put window is narrowed by the
// random suffix, and version records only ever reference the name Save
// returns.
func (m *Minio) Save(ctx context.Context, nameHint string, r io.Reader, size int64) (SavedFile, error) {
	name := SanitizeFilename(nameHint)
	if name == "" {
		name = fallbackName(path.Ext(nameHint))
	}
	base, ext := splitExt(name)

	candidate := name
	if _, err := m.client.StatObject(ctx, m.bucket, candidate, minio.StatObjectOptions{}); err == nil {
		candidate = base + uniqueSuffix() + ext
	}
	if _, err := m.client.PutObject(ctx, m.bucket, candidate, r, size, minio.PutObjectOptions{}); err != nil {
		return SavedFile{}, fmt.Errorf("put object %s: %w", candidate, err)
	}
	return SavedFile{Path: candidate, Name: candidate}, nil
}

// Exists reports whether the object is present.
func (m *Minio) Exists(ctx context.Context, objectPath string) bool {
	_, err := m.client.StatObject(ctx, m.bucket, objectPath, minio.StatObjectOptions{})
	return err == nil
}

// Open returns the object's byte stream. Stat runs first so a missing object
// fails here rather than on first read.
func (m *Minio) Open(ctx context.Context, objectPath string) (io.ReadCloser, error) {
	if _, err := m.client.StatObject(ctx, m.bucket, objectPath, minio.StatObjectOptions{}); err != nil {
		return nil, fmt.Errorf("stat object %s: %w", objectPath, err)
	}
	obj, err := m.client.GetObject(ctx, m.bucket, objectPath, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", objectPath, err)
	}
	return obj, nil
}

// Remove deletes the object; a missing object is not an error.
func (m *Minio) Remove(ctx context.Context, objectPath string) error {
	return m.client.RemoveObject(ctx, m.bucket, objectPath, minio.RemoveObjectOptions{})
}

// List returns every object in the bucket with its last-modified time.
func (m *Minio) List(ctx context.Context) ([]StoredObject, error) {
	var out []StoredObject
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects: %w", obj.Err)
		}
		out = append(out, StoredObject{Path: obj.Key, ModTime: obj.LastModified})
	}
	return out, nil
}
