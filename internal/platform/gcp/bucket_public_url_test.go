package gcp

import "testing"

func TestPublicURL(t *testing.T) {
	cases := []struct {
		name string
		cfg  ObjectStorageConfig
		want string
	}{
		{
			name: "gcs default",
			cfg:  ObjectStorageConfig{Mode: ObjectStorageModeGCS, BucketName: "media"},
			want: "https://storage.googleapis.com/media/unsplash/abc.jpg",
		},
		{
			name: "cdn wins",
			cfg:  ObjectStorageConfig{Mode: ObjectStorageModeGCS, BucketName: "media", CDNDomain: "cdn.example.com"},
			want: "https://cdn.example.com/unsplash/abc.jpg",
		},
		{
			name: "emulator",
			cfg:  ObjectStorageConfig{Mode: ObjectStorageModeGCSEmulator, BucketName: "media", EmulatorHost: "http://fake-gcs:4443"},
			want: "http://fake-gcs:4443/storage/v1/b/media/o/unsplash%2Fabc.jpg?alt=media",
		},
		{
			name: "public base override",
			cfg:  ObjectStorageConfig{Mode: ObjectStorageModeGCS, BucketName: "media", PublicBaseURL: "http://localhost:4443"},
			want: "http://localhost:4443/media/unsplash/abc.jpg",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := publicURL(tc.cfg, "/unsplash/abc.jpg"); got != tc.want {
				t.Fatalf("publicURL: want=%q got=%q", tc.want, got)
			}
		})
	}
}

func TestContentTypeForKey(t *testing.T) {
	if got := ContentTypeForKey("a/b.WEBP"); got != "image/webp" {
		t.Fatalf("webp: got=%q", got)
	}
	if got := ContentTypeForKey("a/b"); got != "application/octet-stream" {
		t.Fatalf("fallback: got=%q", got)
	}
}
