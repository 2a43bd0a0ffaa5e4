package unsplash

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yungbote/memoir-studio-backend/internal/platform/envutil"
	"github.com/yungbote/memoir-studio-backend/internal/platform/httpx"
	"github.com/yungbote/memoir-studio-backend/internal/platform/logger"
)

const (
	Provider   = "unsplash"
	LicenseURL = "https://unsplash.com/license"
)

// Photo is one search candidate.
type Photo struct {
	ID               string `json:"id"`
	Description      string `json:"description"`
	ImageURL         string `json:"image_url"`
	DownloadLocation string `json:"download_location"`
	AuthorName       string `json:"author_name"`
	AuthorURL        string `json:"author_url"`
	Width            int    `json:"width"`
	Height           int    `json:"height"`
}

type Client interface {
	Search(ctx context.Context, query string, perPage int) ([]Photo, error)
	Photo(ctx context.Context, id string) (Photo, error)
	// Download registers the download with Unsplash and returns the image bytes.
	Download(ctx context.Context, p Photo) ([]byte, string, error)
}

type Config struct {
	AccessKey  string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	MaxBytes   int64
}

func ConfigFromEnv() Config {
	return Config{
		AccessKey:  envutil.String("UNSPLASH_ACCESS_KEY", ""),
		BaseURL:    envutil.String("UNSPLASH_BASE_URL", "https://api.unsplash.com"),
		Timeout:    envutil.Seconds("UNSPLASH_TIMEOUT_SECONDS", 30*time.Second),
		MaxRetries: envutil.Int("UNSPLASH_MAX_RETRIES", 2),
		MaxBytes:   int64(envutil.Int("UNSPLASH_MAX_BYTES", 20<<20)),
	}
}

type client struct {
	log        *logger.Logger
	baseURL    string
	accessKey  string
	httpClient *http.Client
	maxRetries int
	maxBytes   int64
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	if strings.TrimSpace(cfg.AccessKey) == "" {
		return nil, fmt.Errorf("missing UNSPLASH_ACCESS_KEY")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 20 << 20
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.unsplash.com"
	}
	return &client{
		log:        log.With("client", "UnsplashClient"),
		baseURL:    baseURL,
		accessKey:  cfg.AccessKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		maxBytes:   cfg.MaxBytes,
	}, nil
}

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("unsplash http %d: %s", e.StatusCode, e.Body)
}

func (e *httpError) HTTPStatusCode() int { return e.StatusCode }

type photoJSON struct {
	ID             string `json:"id"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Description    string `json:"description"`
	AltDescription string `json:"alt_description"`
	URLs           struct {
		Regular string `json:"regular"`
	} `json:"urls"`
	Links struct {
		DownloadLocation string `json:"download_location"`
	} `json:"links"`
	User struct {
		Name  string `json:"name"`
		Links struct {
			HTML string `json:"html"`
		} `json:"links"`
	} `json:"user"`
}

func (r photoJSON) photo() (Photo, bool) {
	if r.ID == "" || r.URLs.Regular == "" {
		return Photo{}, false
	}
	desc := r.Description
	if desc == "" {
		desc = r.AltDescription
	}
	return Photo{
		ID:               r.ID,
		Description:      desc,
		ImageURL:         r.URLs.Regular,
		DownloadLocation: r.Links.DownloadLocation,
		AuthorName:       r.User.Name,
		AuthorURL:        r.User.Links.HTML,
		Width:            r.Width,
		Height:           r.Height,
	}, true
}

type searchResponse struct {
	Results []photoJSON `json:"results"`
}

func (c *client) Search(ctx context.Context, query string, perPage int) ([]Photo, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if perPage <= 0 || perPage > 30 {
		perPage = 5
	}
	q := url.Values{}
	q.Set("query", query)
	q.Set("per_page", fmt.Sprint(perPage))
	q.Set("content_filter", "high")

	raw, _, err := c.get(ctx, c.baseURL+"/search/photos?"+q.Encode(), true)
	if err != nil {
		return nil, err
	}
	var resp searchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("unsplash decode error: %w", err)
	}
	out := make([]Photo, 0, len(resp.Results))
	for _, r := range resp.Results {
		if p, ok := r.photo(); ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *client) Photo(ctx context.Context, id string) (Photo, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Photo{}, fmt.Errorf("missing unsplash photo id")
	}
	raw, _, err := c.get(ctx, c.baseURL+"/photos/"+url.PathEscape(id), true)
	if err != nil {
		return Photo{}, err
	}
	var r photoJSON
	if err := json.Unmarshal(raw, &r); err != nil {
		return Photo{}, fmt.Errorf("unsplash decode error: %w", err)
	}
	p, ok := r.photo()
	if !ok {
		return Photo{}, fmt.Errorf("unsplash photo %s has no image url", id)
	}
	return p, nil
}

func (c *client) Download(ctx context.Context, p Photo) ([]byte, string, error) {
	if p.ImageURL == "" {
		return nil, "", fmt.Errorf("unsplash photo %s has no image url", p.ID)
	}
	// API guidelines require hitting download_location before using the file.
	if p.DownloadLocation != "" {
		if _, _, err := c.get(ctx, p.DownloadLocation, true); err != nil {
			c.log.Warn("unsplash download tracking failed", "photo_id", p.ID, "error", err)
		}
	}
	return c.get(ctx, p.ImageURL, false)
}

func (c *client) get(ctx context.Context, rawURL string, authed bool) ([]byte, string, error) {
	var (
		raw         []byte
		contentType string
	)
	policy := httpx.Policy{Retries: c.maxRetries, Base: 500 * time.Millisecond, Max: 10 * time.Second}
	err := policy.Do(ctx, func(ctx context.Context) (*http.Response, error) {
		resp, body, err := c.getOnce(ctx, rawURL, authed)
		if err == nil {
			raw, contentType = body, resp.Header.Get("Content-Type")
		}
		return resp, err
	})
	if err != nil {
		return nil, "", err
	}
	return raw, contentType, nil
}

func (c *client) getOnce(ctx context.Context, rawURL string, authed bool) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, err
	}
	if authed {
		req.Header.Set("Authorization", "Client-ID "+c.accessKey)
		req.Header.Set("Accept-Version", "v1")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return resp, nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, nil, &httpError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if int64(len(raw)) > c.maxBytes {
		return resp, nil, fmt.Errorf("unsplash response exceeds %d bytes", c.maxBytes)
	}
	return resp, raw, nil
}
