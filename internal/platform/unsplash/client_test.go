package unsplash

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/yungbote/memoir-studio-backend/internal/platform/logger"
)

func TestSearchAndDownload(t *testing.T) {
	var tracked, searches int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search/photos":
			if r.Header.Get("Authorization") != "Client-ID key" {
				t.Errorf("missing auth header")
			}
			if atomic.AddInt32(&searches, 1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"results":[
				{"id":"abc","width":800,"height":600,"alt_description":"a farmhouse",
				 "urls":{"regular":"` + srv.URL + `/img/abc.jpg"},
				 "links":{"download_location":"` + srv.URL + `/photos/abc/download"},
				 "user":{"name":"Dorothea","links":{"html":"https://unsplash.com/@d"}}},
				{"id":"","urls":{"regular":""}}
			]}`))
		case "/photos/abc/download":
			atomic.AddInt32(&tracked, 1)
			_, _ = w.Write([]byte(`{"url":"x"}`))
		case "/img/abc.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = w.Write([]byte("jpegbytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, err := NewClient(logger.Nop(), Config{AccessKey: "key", BaseURL: srv.URL, MaxRetries: 2})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	photos, err := c.Search(context.Background(), "farmhouse", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(photos) != 1 || photos[0].ID != "abc" || photos[0].AuthorName != "Dorothea" || photos[0].Description != "a farmhouse" {
		t.Fatalf("photos: %+v", photos)
	}
	body, mime, err := c.Download(context.Background(), photos[0])
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(body) != "jpegbytes" || mime != "image/jpeg" {
		t.Fatalf("download: %q %q", body, mime)
	}
	if atomic.LoadInt32(&tracked) != 1 {
		t.Fatalf("download_location not hit")
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(logger.Nop(), Config{}); err == nil {
		t.Fatalf("expected error without access key")
	}
}

func TestPhotoByID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/photos/xyz" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"id":"xyz","description":"porch","urls":{"regular":"https://img/xyz"},"user":{"name":"Ada"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(logger.Nop(), Config{AccessKey: "key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	p, err := c.Photo(context.Background(), "xyz")
	if err != nil {
		t.Fatalf("Photo: %v", err)
	}
	if p.ImageURL != "https://img/xyz" || p.AuthorName != "Ada" {
		t.Fatalf("photo: %+v", p)
	}
	if _, err := c.Photo(context.Background(), "missing"); err == nil {
		t.Fatalf("expected error for unknown photo")
	}
}
