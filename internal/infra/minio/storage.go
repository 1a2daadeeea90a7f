package minio

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Storage struct {
	client        *miniogo.Client
	uploadBucket  string
	summaryBucket string
}

type StorageConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	UploadBucket  string
	SummaryBucket string
}

func NewStorage(cfg StorageConfig) (*Storage, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Storage{
		client:        client,
		uploadBucket:  cfg.UploadBucket,
		summaryBucket: cfg.SummaryBucket,
	}, nil
}

func (s *Storage) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.uploadBucket, s.summaryBucket} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, miniogo.MakeBucketOptions{}); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

func (s *Storage) DownloadVideo(ctx context.Context, objectKey string, destPath string) error {
	if err := s.client.FGetObject(ctx, s.uploadBucket, objectKey, destPath, miniogo.GetObjectOptions{}); err != nil {
		return fmt.Errorf("download video: %w", err)
	}
	return nil
}

// UploadSummary stores a summary video and returns its object URL.
func (s *Storage) UploadSummary(ctx context.Context, objectKey string, reader io.Reader, size int64) (string, error) {
	_, err := s.client.PutObject(ctx, s.summaryBucket, objectKey, reader, size, miniogo.PutObjectOptions{
		ContentType: "video/mp4",
	})
	if err != nil {
		return "", fmt.Errorf("upload summary: %w", err)
	}
	return s.ObjectURL(s.summaryBucket, objectKey), nil
}

func (s *Storage) ObjectURL(bucket, objectKey string) string {
	u := *s.client.EndpointURL()
	u.Path = "/" + bucket + "/" + objectKey
	u.RawPath = ""
	return u.String()
}

// SummaryPublisher uploads finished summaries to the summary bucket.
type SummaryPublisher struct {
	storage *Storage
	prefix  string
}

func NewSummaryPublisher(storage *Storage, prefix string) *SummaryPublisher {
	return &SummaryPublisher{storage: storage, prefix: prefix}
}

func (p *SummaryPublisher) Publish(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open summary: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat summary: %w", err)
	}

	key := filepath.Base(localPath)
	if p.prefix != "" {
		key = p.prefix + "/" + key
	}
	return p.storage.UploadSummary(ctx, key, f, stat.Size())
}
