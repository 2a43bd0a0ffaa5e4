package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/yungbote/memoir-studio-backend/internal/modules/studio/mediacache"
	"github.com/yungbote/memoir-studio-backend/internal/platform/envutil"
	"github.com/yungbote/memoir-studio-backend/internal/platform/gcp"
	"github.com/yungbote/memoir-studio-backend/internal/platform/logger"
)

var (
	newMediaBucket             = gcp.NewMediaBucket
	resolveObjectStorageConfig = gcp.ResolveObjectStorageConfigFromEnv
)

type MediaStoreBootstrapErrorCode string

const (
	MediaStoreBootstrapErrorInvalidConfig MediaStoreBootstrapErrorCode = "invalid_config"
	MediaStoreBootstrapErrorConnectFailed MediaStoreBootstrapErrorCode = "connect_failed"
)

type MediaStoreBootstrapError struct {
	Code  MediaStoreBootstrapErrorCode
	Field string
	Mode  string
	Cause error
}

func (e *MediaStoreBootstrapError) Error() string {
	if e == nil {
		return "media store bootstrap failed"
	}
	return fmt.Sprintf("media store bootstrap failed (code=%s mode=%q field=%q): %v", e.Code, e.Mode, e.Field, e.Cause)
}

func (e *MediaStoreBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveMediaStore returns the GCS bucket when one is configured, otherwise an
// in-process store serving from cfg.MediaBaseURL.
func resolveMediaStore(ctx context.Context, log *logger.Logger, cfg Config) (mediacache.ObjectStore, error) {
	if envutil.String("MEDIA_GCS_BUCKET_NAME", "") == "" && envutil.String("STORAGE_EMULATOR_HOST", "") == "" {
		log.Warn("No media bucket configured; media bytes are kept in memory", "base_url", cfg.MediaBaseURL)
		return mediacache.NewMemoryStore(cfg.MediaBaseURL), nil
	}
	storageCfg, err := resolveObjectStorageConfig()
	if err != nil {
		classified := classifyMediaStoreBootstrapError(storageCfg, err)
		log.Error("Media store configuration invalid", "mode", storageCfg.Mode, "error", classified)
		return nil, classified
	}
	log.Info("Selecting media store", "mode", storageCfg.Mode, "bucket", storageCfg.BucketName, "emulator_host", storageCfg.EmulatorHost)
	bucket, err := newMediaBucket(ctx, log, storageCfg)
	if err != nil {
		classified := classifyMediaStoreBootstrapError(storageCfg, err)
		log.Error("Media store bootstrap failed", "mode", storageCfg.Mode, "error", classified)
		return nil, classified
	}
	return bucket, nil
}

func classifyMediaStoreBootstrapError(storageCfg gcp.ObjectStorageConfig, err error) error {
	var cfgErr *gcp.ObjectStorageConfigError
	if errors.As(err, &cfgErr) {
		return &MediaStoreBootstrapError{
			Code:  MediaStoreBootstrapErrorInvalidConfig,
			Field: cfgErr.Field,
			Mode:  string(storageCfg.Mode),
			Cause: err,
		}
	}
	return &MediaStoreBootstrapError{
		Code:  MediaStoreBootstrapErrorConnectFailed,
		Mode:  string(storageCfg.Mode),
		Cause: err,
	}
}
