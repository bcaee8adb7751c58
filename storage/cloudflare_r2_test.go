package storage

import (
	"io"
	"log/slog"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUploader(t *testing.T, base string) *cloudflareR2Uploader {
	t.Helper()
	parsed, err := url.Parse(base)
	require.NoError(t, err)
	if parsed.Path == "" || parsed.Path[len(parsed.Path)-1] != '/' {
		parsed.Path += "/"
	}
	return &cloudflareR2Uploader{
		bucket:        "exports",
		publicBaseURL: parsed,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestGetPublicURL(t *testing.T) {
	cases := []struct {
		name string
		base string
		key  string
		want string
	}{
		{"plain host", "https://cdn.example.com", "brackets/7/1-abc.json", "https://cdn.example.com/brackets/7/1-abc.json"},
		{"base with path", "https://cdn.example.com/exports", "brackets/7/1-abc.json", "https://cdn.example.com/exports/brackets/7/1-abc.json"},
		{"base with trailing slash", "https://cdn.example.com/exports/", "brackets/7/1-abc.json", "https://cdn.example.com/exports/brackets/7/1-abc.json"},
		{"key with leading slash", "https://cdn.example.com", "/brackets/7/1-abc.json", "https://cdn.example.com/brackets/7/1-abc.json"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, newTestUploader(t, tc.base).GetPublicURL(tc.key))
		})
	}
}

func TestGetPublicURLEmptyKey(t *testing.T) {
	assert.Empty(t, newTestUploader(t, "https://cdn.example.com").GetPublicURL(""))
}

func TestNewCloudflareR2UploaderValidation(t *testing.T) {
	_, err := NewCloudflareR2Uploader(CloudflareR2UploaderConfig{AccountID: "acc"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}
