package ytdlp

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ErrNotSupported reports that yt-dlp has no extractor for the source.
var ErrNotSupported = errors.New("ytdlp: source not supported")

// Resolution is the outcome of resolving a page URL: a URL ffmpeg can read
// directly, plus its media type.
type Resolution struct {
	PlayableURL string
	MimeType    string
}

// Resolve asks yt-dlp for the direct media URL behind a page URL.
// Returns ErrNotSupported when no extractor matches.
func (c *Client) Resolve(ctx context.Context, rawURL string) (*Resolution, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("ytdlp: url is required")
	}

	args := []string{"--get-url", "--format", "best", "--no-playlist", rawURL}
	stdout, stderr, err := c.exec(ctx, args...)
	if err != nil {
		if isUnsupported(stderr) {
			return nil, ErrNotSupported
		}
		return nil, wrapExecError(c.PathOrDefault(), args, stdout, stderr, err)
	}

	playable := firstLine(string(stdout))
	if playable == "" {
		return nil, ErrNotSupported
	}

	return &Resolution{
		PlayableURL: playable,
		MimeType:    mimeTypeForURL(playable),
	}, nil
}

// Title asks yt-dlp for the human-readable title of a page URL. Best
// effort: callers treat an error as "no title available".
func (c *Client) Title(ctx context.Context, rawURL string) (string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", fmt.Errorf("ytdlp: url is required")
	}

	args := []string{"--print", "title", "--skip-download", "--no-playlist", rawURL}
	stdout, stderr, err := c.exec(ctx, args...)
	if err != nil {
		if isUnsupported(stderr) {
			return "", ErrNotSupported
		}
		return "", wrapExecError(c.PathOrDefault(), args, stdout, stderr, err)
	}
	return firstLine(string(stdout)), nil
}

func isUnsupported(stderr []byte) bool {
	s := strings.ToLower(string(stderr))
	return strings.Contains(s, "unsupported url") || strings.Contains(s, "is not a valid url")
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexAny(s, "\r\n"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// mimeTypeForURL guesses the media type from the URL path extension.
// HLS playlists and mp4 are the cases the player cares about; everything
// else falls back to video/mp4.
func mimeTypeForURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "video/mp4"
	}
	switch strings.ToLower(path.Ext(u.Path)) {
	case ".m3u8":
		return "application/x-mpegURL"
	case ".mpd":
		return "application/dash+xml"
	case ".webm":
		return "video/webm"
	case ".ts":
		return "video/mp2t"
	default:
		return "video/mp4"
	}
}
