package video_api

import (
	"net/http"
	"os"

	"github.com/labstack/echo/v4"

	"thirdcoast.systems/vodstash/cmd/web/handlers/common"
	"thirdcoast.systems/vodstash/internal/store"
)

// HandleThumbnail serves one preview image by its 1-based index. Unknown
// videos or indexes redirect to the index page; a file that exists in the
// catalog but cannot be read is a client-visible 400.
func HandleThumbnail(catalog *store.Catalog) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := common.RequireUUIDParam(c, "id")
		if err != nil {
			return err
		}
		index, err := common.RequireIntParam(c, "index")
		if err != nil {
			return err
		}

		rec, ok := catalog.Get(id)
		if !ok || rec.Thumbnail == nil {
			return c.Redirect(http.StatusFound, "/")
		}
		path, ok := rec.Thumbnail.Paths[index]
		if !ok {
			return c.Redirect(http.StatusFound, "/")
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return common.ErrBadRequest("thumbnail unreadable")
		}
		return c.Blob(http.StatusOK, "image/jpeg", data)
	}
}
