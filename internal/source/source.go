// Package source classifies user-submitted video sources: direct media
// URLs ffmpeg can ingest as-is, page URLs that need yt-dlp resolution,
// and references to already-archived local videos.
package source

import (
	"errors"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
)

// mediaTypeByExt maps file extensions ffmpeg ingests directly to their
// MIME type. URLs outside this table go through yt-dlp resolution.
var mediaTypeByExt = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".ts":   "video/mp2t",
	".m3u8": "application/x-mpegURL",
	".mpd":  "application/dash+xml",
}

// NormalizeURL trims a user-provided URL, defaults the scheme to https,
// and strips the fragment for stable storage.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("missing url")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" {
		// Best effort: treat as https.
		u, err = url.Parse("https://" + raw)
		if err != nil {
			return "", err
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errors.New("unsupported url scheme: " + u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("missing url host")
	}
	u.Fragment = ""
	return u.String(), nil
}

// MediaType returns the MIME type for a URL pointing directly at a media
// file, keyed on its path extension. ok is false when the URL needs
// resolution instead.
func MediaType(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	mt, ok := mediaTypeByExt[ext]
	return mt, ok
}

// LocalVideoID extracts the video id from a player-local source like
// "/video/{id}", the form the trim endpoint receives when re-cutting an
// archived video. ok is false for anything else.
func LocalVideoID(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	p := raw
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		p = u.Path
	}
	rest, found := strings.CutPrefix(p, "/video/")
	if !found {
		return "", false
	}
	rest = strings.TrimSuffix(rest, "/")
	if _, err := uuid.Parse(rest); err != nil {
		return "", false
	}
	return rest, true
}
