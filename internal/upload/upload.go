package upload

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/rs/zerolog"

	"github.com/vidbatch/vidbatch/internal/core"
)

// Uploader pushes a completed output file to an archive destination and
// returns the remote location.
type Uploader interface {
	Upload(ctx context.Context, localPath, name string) (string, error)
	Close() error
}

// New builds an uploader for the batch file's archive section.
func New(cfg core.ArchiveConfig, log zerolog.Logger) (Uploader, error) {
	switch cfg.Type {
	case "s3":
		return newS3Uploader(cfg, log)
	case "sftp":
		return newSFTPUploader(cfg, log), nil
	default:
		return nil, fmt.Errorf("unknown archive type %q", cfg.Type)
	}
}

// ArchiveKey builds a date-partitioned object key for an uploaded video.
func ArchiveKey(prefix, name string, now time.Time) string {
	day := now.UTC().Format("2006-01-02")
	if prefix == "" {
		return path.Join(day, name)
	}
	return path.Join(prefix, day, name)
}
