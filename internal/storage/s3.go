package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"baulot/internal/config"
)

// s3Client is the subset of *minio.Client used by S3.
type s3Client interface {
	PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error
	PresignedGetObject(ctx context.Context, bucket, key string, expiry time.Duration) (*url.URL, error)
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	RemoveObject(ctx context.Context, bucket, key string) error
}

type minioClient struct {
	client *minio.Client
}

func (m minioClient) PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	_, err := m.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (m minioClient) PresignedGetObject(ctx context.Context, bucket, key string, expiry time.Duration) (*url.URL, error) {
	return m.client.PresignedGetObject(ctx, bucket, key, expiry, nil)
}

// GetObject stats the object first so a missing key fails here rather
// than on the first read.
func (m minioClient) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrObjectNotFound
		}
		return nil, err
	}
	return obj, nil
}

func (m minioClient) RemoveObject(ctx context.Context, bucket, key string) error {
	return m.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
}

// S3 stores objects in an S3-compatible bucket. With PublicBaseURL set the
// bucket is assumed publicly readable; otherwise URLs are pre-signed.
type S3 struct {
	client        s3Client
	bucket        string
	publicBaseURL string
	urlExpiry     time.Duration
}

func NewS3(cfg config.StorageConfig) (*S3, error) {
	useSSL := true
	if cfg.UseSSL != nil {
		useSSL = *cfg.UseSSL
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}
	expiry := cfg.URLExpiry.Std()
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &S3{
		client:        minioClient{client: client},
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimSuffix(cfg.PublicURL, "/"),
		urlExpiry:     expiry,
	}, nil
}

func (s *S3) Upload(ctx context.Context, key, contentType string, data []byte) error {
	clean, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := s.client.PutObject(ctx, s.bucket, clean, data, contentType); err != nil {
		return fmt.Errorf("upload photo to S3: %w", err)
	}
	return nil
}

func (s *S3) PublicURL(ctx context.Context, key string) (string, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + clean, nil
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, clean, s.urlExpiry)
	if err != nil {
		return "", fmt.Errorf("generate pre-signed URL: %w", err)
	}
	return u.String(), nil
}

func (s *S3) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	r, err := s.client.GetObject(ctx, s.bucket, clean)
	if errors.Is(err, ErrObjectNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("read photo from S3: %w", err)
	}
	return r, nil
}

func (s *S3) Remove(ctx context.Context, key string) error {
	clean, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, clean); err != nil {
		return fmt.Errorf("remove photo from S3: %w", err)
	}
	return nil
}
