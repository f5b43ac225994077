package upload

import (
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"github.com/vidbatch/vidbatch/internal/core"
)

// S3Uploader archives results to an S3-compatible object store.
type S3Uploader struct {
	cfg    core.ArchiveConfig
	client *minio.Client
	log    zerolog.Logger
}

func newS3Uploader(cfg core.ArchiveConfig, log zerolog.Logger) (*S3Uploader, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	return &S3Uploader{cfg: cfg, client: client, log: log}, nil
}

func (u *S3Uploader) Upload(ctx context.Context, localPath, name string) (string, error) {
	key := ArchiveKey(u.cfg.Prefix, name, time.Now())
	_, err := u.client.FPutObject(ctx, u.cfg.Bucket, key, localPath, minio.PutObjectOptions{
		ContentType: "video/mp4",
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	u.log.Info().Str("bucket", u.cfg.Bucket).Str("key", key).Msg("archived to object store")
	return fmt.Sprintf("s3://%s/%s", u.cfg.Bucket, key), nil
}

func (u *S3Uploader) Close() error { return nil }
