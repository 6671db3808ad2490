// package video_api provides video-related API handlers.
package video_api

import (
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"thirdcoast.systems/vodstash/cmd/web/handlers/common"
	"thirdcoast.systems/vodstash/internal/job"
	"thirdcoast.systems/vodstash/internal/source"
	"thirdcoast.systems/vodstash/internal/store"
	"thirdcoast.systems/vodstash/pkg/ytdlp"
)

// Wire sentinels clients key their error handling on. These are the
// response bodies, not HTTP errors, so the player UI can message them.
const (
	sentinelNotSupported = "not-supported"
	sentinelFFmpegFailed = "ffmpeg-failed"
)

type submitBody struct {
	URL string `json:"url"`
}

type trimBody struct {
	URL   string  `json:"url"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// HandleSubmitStream starts archiving a live stream. The page URL is
// resolved to its playable manifest with yt-dlp.
func HandleSubmitStream(orch *job.Orchestrator, resolver *ytdlp.Client) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body submitBody
		if err := c.Bind(&body); err != nil {
			return common.ErrBadRequest("invalid json")
		}
		req, err := resolveSource(c, resolver, body.URL, store.OriginStream)
		if err != nil || req == nil {
			return err
		}
		return submit(c, orch, *req)
	}
}

// HandleSubmitDownload starts archiving a finished video.
func HandleSubmitDownload(orch *job.Orchestrator, resolver *ytdlp.Client) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body submitBody
		if err := c.Bind(&body); err != nil {
			return common.ErrBadRequest("invalid json")
		}
		req, err := resolveSource(c, resolver, body.URL, store.OriginFull)
		if err != nil || req == nil {
			return err
		}
		return submit(c, orch, *req)
	}
}

// HandleSubmitTrim archives a cut of a video. The source may be a remote
// URL or a local "/video/{id}" reference to an already-archived video.
func HandleSubmitTrim(orch *job.Orchestrator, resolver *ytdlp.Client, catalog *store.Catalog) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body trimBody
		if err := c.Bind(&body); err != nil {
			return common.ErrBadRequest("invalid json")
		}
		if body.Start < 0 || body.End <= body.Start {
			return common.ErrBadRequest("invalid trim window")
		}

		var req *job.SubmitRequest
		if id, ok := source.LocalVideoID(body.URL); ok {
			rec, found := catalog.Get(id)
			if !found || rec.Video.Path == "" {
				return common.ErrNotFound("unknown source video")
			}
			req = &job.SubmitRequest{
				Origin:     store.OriginTrim,
				Source:     rec.Video.Path,
				SourceType: rec.Video.Type,
			}
		} else {
			var err error
			req, err = resolveSource(c, resolver, body.URL, store.OriginTrim)
			if err != nil || req == nil {
				return err
			}
		}

		req.TrimStart = time.Duration(body.Start * float64(time.Second))
		req.TrimEnd = time.Duration(body.End * float64(time.Second))
		return submit(c, orch, *req)
	}
}

// HandleSubmitUpload archives a video file uploaded by the client. The
// upload is staged on disk, type-checked by content, and handed to the
// pipeline, which removes the staged copy once ffmpeg has consumed it.
func HandleSubmitUpload(orch *job.Orchestrator, uploadDir string) echo.HandlerFunc {
	return func(c echo.Context) error {
		fh, err := c.FormFile("video")
		if err != nil {
			return common.ErrBadRequest("missing video file")
		}

		if err := os.MkdirAll(uploadDir, 0o755); err != nil {
			return common.ErrInternal("cannot stage upload")
		}
		staged := filepath.Join(uploadDir, uuid.NewString()+filepath.Ext(fh.Filename))
		if err := saveUpload(fh, staged); err != nil {
			slog.Error("failed to stage upload", "error", err)
			return common.ErrInternal("cannot stage upload")
		}

		mt, err := mimetype.DetectFile(staged)
		if err != nil || !strings.HasPrefix(mt.String(), "video/") {
			_ = os.Remove(staged)
			return c.JSON(http.StatusOK, sentinelNotSupported)
		}

		return submit(c, orch, job.SubmitRequest{
			Origin:     store.OriginUpload,
			Source:     staged,
			SourceType: mt.String(),
			Title:      strings.TrimSuffix(fh.Filename, filepath.Ext(fh.Filename)),
			Cleanup: func() {
				if err := os.Remove(staged); err != nil {
					slog.Error("failed to remove staged upload", "path", staged, "error", err)
				}
			},
		})
	}
}

// resolveSource turns a submitted URL into a playable source: direct
// media URLs pass through, page URLs go through yt-dlp. A nil request
// with nil error means a sentinel response was already written.
func resolveSource(c echo.Context, resolver *ytdlp.Client, rawURL string, origin store.Origin) (*job.SubmitRequest, error) {
	normalized, err := source.NormalizeURL(rawURL)
	if err != nil {
		return nil, common.ErrBadRequest("invalid url")
	}

	if mt, ok := source.MediaType(normalized); ok {
		return &job.SubmitRequest{Origin: origin, Source: normalized, SourceType: mt}, nil
	}

	res, err := resolver.Resolve(c.Request().Context(), normalized)
	if err != nil {
		if errors.Is(err, ytdlp.ErrNotSupported) {
			return nil, c.JSON(http.StatusOK, sentinelNotSupported)
		}
		slog.Error("source resolution failed", "url", normalized, "error", err)
		return nil, c.JSON(http.StatusOK, sentinelNotSupported)
	}

	// Best effort; an unnamed video is still archivable.
	title, err := resolver.Title(c.Request().Context(), normalized)
	if err != nil {
		slog.Warn("title lookup failed", "url", normalized, "error", err)
	}

	return &job.SubmitRequest{Origin: origin, Source: res.PlayableURL, SourceType: res.MimeType, Title: title}, nil
}

// submit runs the submission and maps pipeline errors onto the wire
// sentinels.
func submit(c echo.Context, orch *job.Orchestrator, req job.SubmitRequest) error {
	id, err := orch.Submit(req)
	if err != nil {
		var tue *job.ToolUnavailableError
		if errors.As(err, &tue) {
			return c.JSON(http.StatusOK, tue.Sentinel())
		}
		var te *job.TranscodeError
		if errors.As(err, &te) {
			return c.JSON(http.StatusOK, sentinelFFmpegFailed)
		}
		slog.Error("submission failed", "origin", req.Origin, "error", err)
		return common.ErrInternal("submission failed")
	}
	return c.JSON(http.StatusOK, id)
}

func saveUpload(fh *multipart.FileHeader, dst string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
