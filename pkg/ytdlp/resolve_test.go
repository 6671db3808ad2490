package ytdlp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_PlayableURL(t *testing.T) {
	c := New()
	c.execFn = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		assert.Equal(t, "yt-dlp", name)
		assert.Contains(t, args, "--get-url")
		return []byte("https://cdn.example.com/stream/master.m3u8\n"), nil, nil
	}

	res, err := c.Resolve(context.Background(), "https://example.com/watch?v=abc")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/stream/master.m3u8", res.PlayableURL)
	assert.Equal(t, "application/x-mpegURL", res.MimeType)
}

func TestResolve_Unsupported(t *testing.T) {
	c := New()
	c.execFn = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return nil, []byte("ERROR: Unsupported URL: https://example.com/page"), errors.New("exit status 1")
	}

	_, err := c.Resolve(context.Background(), "https://example.com/page")
	require.ErrorIs(t, err, ErrNotSupported)
}

func TestResolve_ExecError(t *testing.T) {
	c := New()
	c.execFn = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return nil, []byte("ERROR: network timed out"), errors.New("exit status 1")
	}

	_, err := c.Resolve(context.Background(), "https://example.com/watch?v=abc")
	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Stderr, "network timed out")
}

func TestTitle(t *testing.T) {
	c := New()
	c.execFn = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		assert.Contains(t, args, "--print")
		assert.Contains(t, args, "--skip-download")
		return []byte("My Stream VOD\n"), nil, nil
	}

	title, err := c.Title(context.Background(), "https://example.com/watch?v=abc")
	require.NoError(t, err)
	assert.Equal(t, "My Stream VOD", title)
}

func TestTitle_Unsupported(t *testing.T) {
	c := New()
	c.execFn = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return nil, []byte("ERROR: Unsupported URL: x"), errors.New("exit status 1")
	}

	_, err := c.Title(context.Background(), "https://example.com/page")
	require.ErrorIs(t, err, ErrNotSupported)
}

func TestResolve_EmptyURL(t *testing.T) {
	c := New()
	_, err := c.Resolve(context.Background(), "  ")
	require.Error(t, err)
}

func TestMimeTypeForURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://cdn.example.com/v.mp4?sig=1", "video/mp4"},
		{"https://cdn.example.com/v.webm", "video/webm"},
		{"https://cdn.example.com/master.m3u8", "application/x-mpegURL"},
		{"https://cdn.example.com/manifest.mpd", "application/dash+xml"},
		{"https://cdn.example.com/seg.ts", "video/mp2t"},
		{"https://cdn.example.com/novideo", "video/mp4"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mimeTypeForURL(tt.url), tt.url)
	}
}
