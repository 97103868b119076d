package storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/your-org/ema/internal/config"
)

// ArchiveMirror keeps copies of exported archives in an S3-compatible bucket and
// fetches archives from it for import.
type ArchiveMirror struct {
	client *minio.Client
	bucket string
	prefix string
}

// RemoteArchive describes one mirrored archive.
type RemoteArchive struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

func NewArchiveMirror(cfg config.MirrorConfig) (*ArchiveMirror, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &ArchiveMirror{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (m *ArchiveMirror) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

// Upload stores the archive at localPath and returns its object key.
func (m *ArchiveMirror) Upload(ctx context.Context, localPath string) (string, error) {
	key := m.Key(filepath.Base(localPath))

	contentType := "application/zip"
	if mt, err := mimetype.DetectFile(localPath); err == nil {
		contentType = mt.String()
	}

	if _, err := m.client.FPutObject(ctx, m.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return key, nil
}

// Download fetches key into destPath.
func (m *ArchiveMirror) Download(ctx context.Context, key, destPath string) error {
	if err := m.client.FGetObject(ctx, m.bucket, key, destPath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("get object %s: %w", key, err)
	}
	return nil
}

// List returns the mirrored archives in the order MinIO returns them.
func (m *ArchiveMirror) List(ctx context.Context) ([]RemoteArchive, error) {
	var out []RemoteArchive
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    m.prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects %s: %w", m.prefix, obj.Err)
		}
		out = append(out, RemoteArchive{Key: obj.Key, Size: obj.Size, LastModified: obj.LastModified})
	}
	return out, nil
}

// Key places name under the configured prefix.
func (m *ArchiveMirror) Key(name string) string {
	if strings.HasPrefix(name, m.prefix) {
		return name
	}
	return path.Join(m.prefix, name)
}

// Ping checks MinIO connectivity.
func (m *ArchiveMirror) Ping(ctx context.Context) error {
	_, err := m.client.BucketExists(ctx, m.bucket)
	return err
}
