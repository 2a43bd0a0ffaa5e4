package app

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/yungbote/memoir-studio-backend/internal/modules/studio/mediacache"
	"github.com/yungbote/memoir-studio-backend/internal/platform/gcp"
	"github.com/yungbote/memoir-studio-backend/internal/platform/logger"
)

type stubBucket struct{}

func (stubBucket) Put(context.Context, string, string, io.Reader) error { return nil }
func (stubBucket) Delete(context.Context, string) error                 { return nil }
func (stubBucket) PublicURL(key string) string                          { return "https://cdn.test/" + key }

func TestClassifyMediaStoreBootstrapErrorInvalidConfig(t *testing.T) {
	storageCfg := gcp.ObjectStorageConfig{Mode: gcp.ObjectStorageModeGCSEmulator}
	srcErr := &gcp.ObjectStorageConfigError{Field: "STORAGE_EMULATOR_HOST", Value: "fake-gcs:4443"}

	err := classifyMediaStoreBootstrapError(storageCfg, srcErr)

	var got *MediaStoreBootstrapError
	if !errors.As(err, &got) {
		t.Fatalf("expected MediaStoreBootstrapError, got=%T", err)
	}
	if got.Code != MediaStoreBootstrapErrorInvalidConfig || got.Field != "STORAGE_EMULATOR_HOST" {
		t.Fatalf("unexpected classification: %+v", got)
	}
	if !errors.Is(err, srcErr) {
		t.Fatalf("cause not preserved")
	}
}

func TestClassifyMediaStoreBootstrapErrorConnectFailed(t *testing.T) {
	storageCfg := gcp.ObjectStorageConfig{Mode: gcp.ObjectStorageModeGCS}
	err := classifyMediaStoreBootstrapError(storageCfg, errors.New("dial tcp: refused"))

	var got *MediaStoreBootstrapError
	if !errors.As(err, &got) {
		t.Fatalf("expected MediaStoreBootstrapError, got=%T", err)
	}
	if got.Code != MediaStoreBootstrapErrorConnectFailed || got.Mode != "gcs" {
		t.Fatalf("unexpected classification: %+v", got)
	}
}

func TestResolveMediaStoreFallsBackToMemory(t *testing.T) {
	t.Setenv("MEDIA_GCS_BUCKET_NAME", "")
	t.Setenv("STORAGE_EMULATOR_HOST", "")

	store, err := resolveMediaStore(context.Background(), logger.Nop(), Config{MediaBaseURL: "http://localhost/media"})
	if err != nil {
		t.Fatalf("resolveMediaStore: %v", err)
	}
	if _, ok := store.(*mediacache.MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}

func TestResolveMediaStoreUsesBucket(t *testing.T) {
	t.Setenv("MEDIA_GCS_BUCKET_NAME", "memoir-media")

	origResolve, origNew := resolveObjectStorageConfig, newMediaBucket
	t.Cleanup(func() { resolveObjectStorageConfig, newMediaBucket = origResolve, origNew })

	resolveObjectStorageConfig = func() (gcp.ObjectStorageConfig, error) {
		return gcp.ObjectStorageConfig{Mode: gcp.ObjectStorageModeGCS, BucketName: "memoir-media"}, nil
	}
	var gotBucket string
	newMediaBucket = func(_ context.Context, _ *logger.Logger, cfg gcp.ObjectStorageConfig) (gcp.MediaBucket, error) {
		gotBucket = cfg.BucketName
		return stubBucket{}, nil
	}

	store, err := resolveMediaStore(context.Background(), logger.Nop(), Config{})
	if err != nil {
		t.Fatalf("resolveMediaStore: %v", err)
	}
	if gotBucket != "memoir-media" {
		t.Fatalf("bucket: %q", gotBucket)
	}
	if store.PublicURL("a.png") != "https://cdn.test/a.png" {
		t.Fatalf("unexpected store %T", store)
	}
}

func TestResolveMediaStoreSurfacesConnectFailure(t *testing.T) {
	t.Setenv("MEDIA_GCS_BUCKET_NAME", "memoir-media")

	origResolve, origNew := resolveObjectStorageConfig, newMediaBucket
	t.Cleanup(func() { resolveObjectStorageConfig, newMediaBucket = origResolve, origNew })

	resolveObjectStorageConfig = func() (gcp.ObjectStorageConfig, error) {
		return gcp.ObjectStorageConfig{Mode: gcp.ObjectStorageModeGCS, BucketName: "memoir-media"}, nil
	}
	newMediaBucket = func(context.Context, *logger.Logger, gcp.ObjectStorageConfig) (gcp.MediaBucket, error) {
		return nil, errors.New("no credentials")
	}

	_, err := resolveMediaStore(context.Background(), logger.Nop(), Config{})
	var got *MediaStoreBootstrapError
	if !errors.As(err, &got) || got.Code != MediaStoreBootstrapErrorConnectFailed {
		t.Fatalf("expected connect_failed, got %v", err)
	}
}
