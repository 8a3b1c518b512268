package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"noddymix/config"
	"noddymix/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var minioClient *minio.Client

// InitMinio initializes the MinIO client and makes sure the bucket
// exists.
func InitMinio(cfg *config.Config) error {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", cfg.MinioBucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", cfg.MinioBucket, err)
		}
		logger.Info("Created MinIO bucket", logger.String("bucket", cfg.MinioBucket))
	}

	minioClient = client
	logger.Info("MinIO client initialized", logger.String("endpoint", cfg.MinioEndpoint))
	return nil
}

// GetMinioClient returns the MinIO client instance.
func GetMinioClient() *minio.Client {
	return minioClient
}

// AssetStore manages the audio and art objects behind songs and albums.
// Art comes in three renditions per key: the uploaded source plus derived
// small and thumbnail copies.
type AssetStore struct {
	client *minio.Client
	bucket string
}

// NewAssetStore creates an AssetStore on the given bucket.
func NewAssetStore(client *minio.Client, bucket string) *AssetStore {
	return &AssetStore{client: client, bucket: bucket}
}

// artRenditionKeys derives the keys of the resized copies belonging to an
// art source key: cover.jpg -> cover_small.jpg, cover_thumbnail.jpg.
func artRenditionKeys(key string) []string {
	ext := path.Ext(key)
	base := strings.TrimSuffix(key, ext)
	return []string{base + "_small" + ext, base + "_thumbnail" + ext}
}

// UploadAudio stores an audio payload under the given key.
func (s *AssetStore) UploadAudio(ctx context.Context, key string, r io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: "audio/mpeg",
	})
	if err != nil {
		return fmt.Errorf("failed to upload audio %s: %w", key, err)
	}
	return nil
}

// UploadArt stores an art payload under the given key.
func (s *AssetStore) UploadArt(ctx context.Context, key string, r io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: "image/jpeg",
	})
	if err != nil {
		return fmt.Errorf("failed to upload art %s: %w", key, err)
	}
	return nil
}

// DeleteAudio removes an audio object. A missing object is not an error.
func (s *AssetStore) DeleteAudio(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete audio %s: %w", key, err)
	}
	return nil
}

// DeleteArt removes an art object and its renditions. The derived copies
// go first, so a failure partway through never leaves renditions behind
// without their source.
func (s *AssetStore) DeleteArt(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	for _, rendition := range artRenditionKeys(key) {
		if err := s.client.RemoveObject(ctx, s.bucket, rendition, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("failed to delete art rendition %s: %w", rendition, err)
		}
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete art %s: %w", key, err)
	}
	return nil
}

// ReplaceAudio uploads new audio and cleans up the old object when the
// key actually changed. Same-key replacement is an in-place overwrite
// with nothing to clean.
func (s *AssetStore) ReplaceAudio(ctx context.Context, oldKey, newKey string, r io.Reader, size int64) error {
	if oldKey != "" && oldKey != newKey {
		if err := s.DeleteAudio(ctx, oldKey); err != nil {
			return err
		}
	}
	return s.UploadAudio(ctx, newKey, r, size)
}

// ReplaceArt uploads new art and cleans up the old object and its
// renditions when the key actually changed.
func (s *AssetStore) ReplaceArt(ctx context.Context, oldKey, newKey string, r io.Reader, size int64) error {
	if oldKey != "" && oldKey != newKey {
		if err := s.DeleteArt(ctx, oldKey); err != nil {
			return err
		}
	}
	return s.UploadArt(ctx, newKey, r, size)
}
