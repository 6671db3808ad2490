package video_api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"thirdcoast.systems/vodstash/cmd/web/handlers/common"
	"thirdcoast.systems/vodstash/internal/store"
)

// HandleVideo serves an archived video with byte-range support. The
// ?compressed=true query selects the webm rendition. Unknown ids and
// unreadable files redirect to the index rather than erroring, so stale
// player links degrade gracefully.
func HandleVideo(catalog *store.Catalog) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := common.RequireUUIDParam(c, "id")
		if err != nil {
			return err
		}

		rec, ok := catalog.Get(id)
		if !ok {
			return c.Redirect(http.StatusFound, "/")
		}
		compressed, _ := strconv.ParseBool(c.QueryParam("compressed"))
		variant, ok := rec.Variant(compressed)
		if !ok || variant.Path == "" || variant.State != store.StateCompleted {
			return c.Redirect(http.StatusFound, "/")
		}

		f, err := os.Open(variant.Path)
		if err != nil {
			return c.Redirect(http.StatusFound, "/")
		}
		defer f.Close()
		fi, err := f.Stat()
		if err != nil {
			return c.Redirect(http.StatusFound, "/")
		}
		size := fi.Size()

		contentType := variant.Type
		if contentType == "" {
			contentType = "video/mp4"
		}
		h := c.Response().Header()
		h.Set("Accept-Ranges", "bytes")
		h.Set(echo.HeaderContentType, contentType)

		rangeHeader := c.Request().Header.Get("Range")
		if rangeHeader == "" {
			h.Set(echo.HeaderContentLength, strconv.FormatInt(size, 10))
			c.Response().WriteHeader(http.StatusOK)
			_, err = io.Copy(c.Response(), f)
			return err
		}

		start, end, err := parseByteRange(rangeHeader, size)
		if err != nil {
			h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
			return c.String(http.StatusRequestedRangeNotSatisfiable,
				fmt.Sprintf("requested range %q not satisfiable against %d bytes", rangeHeader, size))
		}

		if _, err := f.Seek(start, io.SeekStart); err != nil {
			return common.ErrInternal("seek failed")
		}
		h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
		h.Set(echo.HeaderContentLength, strconv.FormatInt(end-start+1, 10))
		c.Response().WriteHeader(http.StatusPartialContent)
		_, err = io.CopyN(c.Response(), f, end-start+1)
		return err
	}
}

// parseByteRange parses a "bytes=start-end" header against the file size.
// The end position is optional and clamped to the last byte; a start at
// or past the end of the file is unsatisfiable.
func parseByteRange(header string, size int64) (start, end int64, err error) {
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return 0, 0, errors.New("unsupported range unit")
	}
	startStr, endStr, found := strings.Cut(spec, "-")
	if !found {
		return 0, 0, errors.New("malformed range")
	}

	start, err = strconv.ParseInt(strings.TrimSpace(startStr), 10, 64)
	if err != nil || start < 0 {
		return 0, 0, errors.New("malformed range start")
	}

	end = size - 1
	if trimmed := strings.TrimSpace(endStr); trimmed != "" {
		end, err = strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return 0, 0, errors.New("malformed range end")
		}
		if end > size-1 {
			end = size - 1
		}
	}

	if start >= size || start > end {
		return 0, 0, errors.New("range out of bounds")
	}
	return start, end, nil
}
