// Package storage keeps generated export files in MinIO.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"oc-search-go/internal/config"
	"oc-search-go/pkg/log"
)

// MinioClient is the process-wide MinIO client.
var MinioClient *minio.Client

// InitMinIO creates the client and makes sure the bucket exists.
func InitMinIO(cfg config.MinIOConfig) {
	var err error

	MinioClient, err = minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatal("failed to create MinIO client", err)
	}

	log.Info("MinIO client initialized")

	ctx := context.Background()
	bucketName := cfg.BucketName
	exists, err := MinioClient.BucketExists(ctx, bucketName)
	if err != nil {
		log.Fatal("failed to check MinIO bucket", err)
	}

	if !exists {
		log.Infof("bucket '%s' does not exist, creating it", bucketName)
		err = MinioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			log.Fatal("failed to create MinIO bucket", err)
		}
		log.Infof("bucket '%s' created", bucketName)
	} else {
		log.Infof("bucket '%s' already exists", bucketName)
	}
}

// Store is the object storage used for export files.
type Store interface {
	Put(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error
	// Modified returns the last modification time of an object, or false
	// when it does not exist.
	Modified(ctx context.Context, objectName string) (time.Time, bool, error)
	PresignedURL(ctx context.Context, objectName, downloadName string, expiry time.Duration) (string, error)
}

type minioStore struct {
	client *minio.Client
	bucket string
}

// NewStore wraps the global client for bucket.
func NewStore(bucket string) Store {
	return &minioStore{client: MinioClient, bucket: bucket}
}

func (s *minioStore) Put(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, objectName, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("upload %s: %w", objectName, err)
	}
	return nil
}

func (s *minioStore) Modified(ctx context.Context, objectName string) (time.Time, bool, error) {
	info, err := s.client.StatObject(ctx, s.bucket, objectName, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("stat %s: %w", objectName, err)
	}
	return info.LastModified, true, nil
}

// PresignedURL returns a download link that saves the object as downloadName.
func (s *minioStore) PresignedURL(ctx context.Context, objectName, downloadName string, expiry time.Duration) (string, error) {
	params := url.Values{}
	if downloadName != "" {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", downloadName))
	}
	presignedURL, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, expiry, params)
	if err != nil {
		log.Errorf("Error generating presigned URL: %s", err)
		return "", err
	}
	return presignedURL.String(), nil
}
