package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/config"
)

const archiveContentType = "application/zip"

// ArchiveMirror copies delivered archives to an S3-compatible bucket.
type ArchiveMirror struct {
	client *minio.Client
	bucket string
	region string
}

// Enabled reports whether an endpoint is configured at all.
func Enabled(cfg config.StorageConfig) bool {
	return strings.TrimSpace(cfg.Endpoint) != ""
}

// Endpoint strips an optional scheme from raw. A scheme overrides useSSL.
func Endpoint(raw string, useSSL bool) (string, bool, error) {
	if !strings.HasPrefix(raw, "http") {
		return raw, useSSL, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse endpoint: %w", err)
	}
	return u.Host, u.Scheme == "https", nil
}

func NewArchiveMirror(cfg config.StorageConfig) (*ArchiveMirror, error) {
	endpoint, useSSL, err := Endpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}

	return &ArchiveMirror{
		client: client,
		bucket: cfg.BucketArchives,
		region: cfg.Region,
	}, nil
}

func (m *ArchiveMirror) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("bucket exists %s: %w", m.bucket, err)
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: m.region}); err != nil {
			return fmt.Errorf("create bucket %s: %w", m.bucket, err)
		}
	}
	return nil
}

func (m *ArchiveMirror) PutArchive(ctx context.Context, key string, r io.Reader, size int64) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: archiveContentType,
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", m.bucket, key, err)
	}
	return nil
}

// ArchiveKey lays archives out by day: 2024/05/01/<job id>/<name>.
func ArchiveKey(at time.Time, jobID, name string) string {
	return path.Join(at.UTC().Format("2006/01/02"), jobID, name)
}
