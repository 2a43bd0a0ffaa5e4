// Package mediacache stores externally sourced images once per (provider, source_id).
package mediacache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/singleflight"

	"github.com/yungbote/memoir-studio-backend/internal/data/repos"
	types "github.com/yungbote/memoir-studio-backend/internal/domain"
	"github.com/yungbote/memoir-studio-backend/internal/domain/studio"
	"github.com/yungbote/memoir-studio-backend/internal/observability"
	"github.com/yungbote/memoir-studio-backend/internal/platform/dbctx"
	"github.com/yungbote/memoir-studio-backend/internal/platform/logger"
)

const defaultMaxBytes = 20 << 20

// ObjectStore holds asset bytes. gcp.MediaBucket satisfies it.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) error
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
}

// Fetched is what a provider download yields.
type Fetched struct {
	Body        []byte
	MimeType    string
	Attribution studio.Attribution
}

// FetchFunc retrieves the source bytes. It is only invoked on a cache miss.
type FetchFunc func(ctx context.Context) (*Fetched, error)

type Result struct {
	Asset  *types.MediaAsset `json:"asset"`
	Reused bool              `json:"reused"`
}

type Deps struct {
	Log      *logger.Logger
	Assets   repos.MediaAssetRepo
	Store    ObjectStore
	Metrics  *observability.Metrics
	MaxBytes int
}

type Cache struct {
	log      *logger.Logger
	assets   repos.MediaAssetRepo
	store    ObjectStore
	metrics  *observability.Metrics
	maxBytes int
	flights  singleflight.Group
}

func New(deps Deps) *Cache {
	if deps.MaxBytes <= 0 {
		deps.MaxBytes = defaultMaxBytes
	}
	return &Cache{
		log:      deps.Log.With("service", "MediaAssetCache"),
		assets:   deps.Assets,
		store:    deps.Store,
		metrics:  deps.Metrics,
		maxBytes: deps.MaxBytes,
	}
}

// CreateOrGetBySource returns the stored asset for (provider, sourceID), fetching and
// storing it on first use. Concurrent misses in this process share one fetch; across
// processes the unique (provider, source_id) key picks the winner and losers delete
// their uploaded object.
func (c *Cache) CreateOrGetBySource(ctx context.Context, provider, sourceID string, fetch FetchFunc) (Result, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	sourceID = strings.TrimSpace(sourceID)
	if provider == "" || sourceID == "" {
		return Result{}, studio.NewError(studio.CodeInvalidInput, "provider and source id are required", nil)
	}
	if fetch == nil {
		return Result{}, studio.NewError(studio.CodeInvalidInput, "fetch is required", nil)
	}
	dbc := dbctx.Context{Ctx: ctx}

	existing, err := c.assets.GetBySource(dbc, provider, sourceID)
	if err != nil {
		return Result{}, err
	}
	if existing != nil {
		return c.reuse(dbc, existing)
	}

	ran := false
	v, err, _ := c.flights.Do(provider+"\x00"+sourceID, func() (any, error) {
		ran = true
		return c.fetchAndStore(ctx, provider, sourceID, fetch)
	})
	if err != nil {
		return Result{}, err
	}
	res := v.(Result)
	if !ran {
		// Shared the flight of another caller in this process.
		return c.reuse(dbc, res.Asset)
	}
	return res, nil
}

func (c *Cache) reuse(dbc dbctx.Context, asset *types.MediaAsset) (Result, error) {
	if err := c.assets.IncrementRefCount(dbc, asset.ID, 1); err != nil {
		return Result{}, err
	}
	out := *asset
	out.RefCount++
	c.metrics.IncMediaCache(out.Provider, true)
	return Result{Asset: &out, Reused: true}, nil
}

func (c *Cache) fetchAndStore(ctx context.Context, provider, sourceID string, fetch FetchFunc) (Result, error) {
	dbc := dbctx.Context{Ctx: ctx}
	// A flight that started just after another one finished still finds the row.
	if existing, err := c.assets.GetBySource(dbc, provider, sourceID); err != nil {
		return Result{}, err
	} else if existing != nil {
		return c.reuse(dbc, existing)
	}

	c.metrics.IncMediaCache(provider, false)
	got, err := fetch(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("fetch %s/%s: %w", provider, sourceID, err)
	}
	if got == nil || len(got.Body) == 0 {
		return Result{}, studio.Errorf(studio.CodeInvalidInput, "fetch %s/%s returned no bytes", provider, sourceID)
	}
	if provider != studio.MediaProviderUpload && !got.Attribution.Complete() {
		return Result{}, studio.Errorf(studio.CodeMissingAttribution, "media %s/%s has no author or license", provider, sourceID)
	}
	if len(got.Body) > c.maxBytes {
		return Result{}, studio.Errorf(studio.CodeInvalidInput, "media %s/%s exceeds %d bytes", provider, sourceID, c.maxBytes)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(got.Body))
	if err != nil {
		return Result{}, studio.NewError(studio.CodeInvalidInput, fmt.Sprintf("media %s/%s is not a supported image", provider, sourceID), err)
	}
	mimeType := strings.TrimSpace(got.MimeType)
	if mimeType == "" || !strings.HasPrefix(mimeType, "image/") {
		mimeType = "image/" + format
	}

	sum := sha256.Sum256(got.Body)
	key := fmt.Sprintf("media/%s/%s.%s", provider, uuid.New(), extForFormat(format))
	if err := c.store.Put(ctx, key, mimeType, bytes.NewReader(got.Body)); err != nil {
		return Result{}, fmt.Errorf("store media %s/%s: %w", provider, sourceID, err)
	}

	now := time.Now().UTC()
	row := &types.MediaAsset{
		ID:            uuid.New(),
		Provider:      provider,
		SourceID:      sourceID,
		StorageRef:    key,
		URL:           c.store.PublicURL(key),
		MimeType:      mimeType,
		ContentSHA256: hex.EncodeToString(sum[:]),
		Width:         cfg.Width,
		Height:        cfg.Height,
		AuthorName:    strings.TrimSpace(got.Attribution.AuthorName),
		LicenseURL:    strings.TrimSpace(got.Attribution.LicenseURL),
		RefCount:      1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	inserted, err := c.assets.InsertIfAbsent(dbc, row)
	if err != nil {
		c.discard(ctx, key)
		return Result{}, err
	}
	if inserted {
		c.log.Debug("media asset stored", "provider", provider, "source_id", sourceID, "asset_id", row.ID, "bytes", len(got.Body))
		return Result{Asset: row, Reused: false}, nil
	}

	// Lost the insert race to another process.
	c.discard(ctx, key)
	winner, err := c.assets.GetBySource(dbc, provider, sourceID)
	if err != nil {
		return Result{}, err
	}
	if winner == nil {
		return Result{}, studio.Errorf(studio.CodeInternal, "media %s/%s conflicted but winner row is missing", provider, sourceID)
	}
	return c.reuse(dbc, winner)
}

func (c *Cache) discard(ctx context.Context, key string) {
	if err := c.store.Delete(context.WithoutCancel(ctx), key); err != nil {
		c.log.Warn("failed to delete orphaned media object", "storage_ref", key, "error", err)
	}
}

func extForFormat(format string) string {
	switch format {
	case "jpeg":
		return "jpg"
	case "png", "gif", "webp":
		return format
	default:
		return "bin"
	}
}
