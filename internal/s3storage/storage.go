// Package s3storage wraps MinIO/S3 interactions for the site content
// bucket: source downloads, tokenized artifact uploads, and prefix
// eviction.
package s3storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/lumenweb/sitemedia/internal/config"
)

// tokenMetadataKey is the custom metadata field carrying an object's
// download access token. The CDN layer requires it as the token query
// parameter on every download.
const tokenMetadataKey = "download-token"

// Storage wraps a MinIO client scoped to one bucket.
type Storage struct {
	client *minio.Client
	bucket string
	region string
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{
		client: client,
		bucket: cfg.MediaBucket,
		region: cfg.S3Region,
	}, nil
}

// EnsureBucket makes sure the content bucket exists before use.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// DownloadToFile fetches a source object into a local file.
func (s *Storage) DownloadToFile(ctx context.Context, objectPath, localPath string) error {
	if err := s.client.FGetObject(ctx, s.bucket, objectPath, localPath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("download %s: %w", objectPath, err)
	}
	return nil
}

// UploadFile uploads a local file with its access token embedded in the
// object's custom metadata.
func (s *Storage) UploadFile(ctx context.Context, objectPath, localPath, contentType, cacheControl, token string) error {
	_, err := s.client.FPutObject(ctx, s.bucket, objectPath, localPath, putOptions(contentType, cacheControl, token))
	if err != nil {
		return fmt.Errorf("put object %s: %w", objectPath, err)
	}
	return nil
}

// UploadBytes uploads an in-memory artifact, used to overwrite playlists
// after their segment references are rewritten.
func (s *Storage) UploadBytes(ctx context.Context, objectPath string, data []byte, contentType, cacheControl, token string) error {
	reader := bytes.NewReader(data)
	_, err := s.client.PutObject(ctx, s.bucket, objectPath, reader, int64(len(data)), putOptions(contentType, cacheControl, token))
	if err != nil {
		return fmt.Errorf("put object %s: %w", objectPath, err)
	}
	return nil
}

// ListPrefix returns the paths of all objects under prefix.
func (s *Storage) ListPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return keys, fmt.Errorf("list %s: %w", prefix, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// Remove deletes one object.
func (s *Storage) Remove(ctx context.Context, objectPath string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, objectPath, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove %s: %w", objectPath, err)
	}
	return nil
}

func putOptions(contentType, cacheControl, token string) minio.PutObjectOptions {
	return minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: cacheControl,
		UserMetadata: map[string]string{tokenMetadataKey: token},
	}
}
