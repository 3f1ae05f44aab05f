package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"

	"emotion-worker-go/internal/models"
)

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioStore keeps artifacts as objects using the same key layout as FSStore
type MinioStore struct {
	client *minio.Client
	bucket string
	enc    Encoder
	keys   *keyReserver
}

func NewMinioStore(ctx context.Context, cfg MinioConfig, enc Encoder) (*MinioStore, error) {
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("MINIO_ACCESS_KEY / MINIO_SECRET_KEY not configured")
	}
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// Create the bucket if it does not exist
	if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
		exists, errBucketExists := cli.BucketExists(ctx, cfg.Bucket)
		if errBucketExists != nil || !exists {
			return nil, fmt.Errorf("create/check bucket %s: %w", cfg.Bucket, err)
		}
	}

	log.Info().Str("endpoint", cfg.Endpoint).Str("bucket", cfg.Bucket).Msg("minio_artifact_store_ready")
	return &MinioStore{client: cli, bucket: cfg.Bucket, enc: enc, keys: newKeyReserver()}, nil
}

func (s *MinioStore) Save(ctx context.Context, cameraID int64, raw, annotated *models.Frame, result *models.DetectionResult) (*models.ArtifactPaths, error) {
	arts, paths, err := encodeArtifacts(ctx, s.keys, s.exists, s.enc, cameraID, raw, annotated, result)
	if err != nil {
		return nil, err
	}

	written := make([]string, 0, len(arts))
	for _, a := range arts {
		_, err := s.client.PutObject(ctx, s.bucket, a.key, bytes.NewReader(a.data), int64(len(a.data)),
			minio.PutObjectOptions{ContentType: a.contentType})
		if err != nil {
			s.removeAll(written)
			return nil, fmt.Errorf("put object %s: %w", a.key, err)
		}
		written = append(written, a.key)
	}
	return paths, nil
}

func (s *MinioStore) Delete(ctx context.Context, paths models.ArtifactPaths) error {
	var errs []error
	for _, key := range []string{paths.Raw, paths.Annotated, paths.Result} {
		if key == "" {
			continue
		}
		if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func (s *MinioStore) Read(ctx context.Context, key string) ([]byte, string, error) {
	if !validKey(key) {
		return nil, "", fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, "", fmt.Errorf("read object %s: %w", key, err)
	}
	return data, contentTypeFor(key), nil
}

func (s *MinioStore) exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, err
}

func (s *MinioStore) removeAll(keys []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, k := range keys {
		if err := s.client.RemoveObject(ctx, s.bucket, k, minio.RemoveObjectOptions{}); err != nil {
			log.Warn().Err(err).Str("key", k).Msg("artifact_cleanup_failed")
		}
	}
}
