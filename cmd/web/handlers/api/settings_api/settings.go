// package settings_api provides player and pipeline settings handlers.
package settings_api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"thirdcoast.systems/vodstash/cmd/web/handlers/common"
	"thirdcoast.systems/vodstash/internal/store"
)

type playerBody struct {
	Volume float64 `json:"volume"`
	Muted  bool    `json:"muted"`
}

type compressionBody struct {
	Origin  string `json:"origin"`
	Enabled bool   `json:"enabled"`
}

// HandlePlayerGet returns the persisted player volume state.
func HandlePlayerGet(prefs *store.Preferences) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, prefs.Player())
	}
}

// HandlePlayerPut stores the player volume state.
func HandlePlayerPut(prefs *store.Preferences) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body playerBody
		if err := c.Bind(&body); err != nil {
			return common.ErrBadRequest("invalid json")
		}
		if err := prefs.SetPlayer(body.Volume, body.Muted); err != nil {
			return common.ErrBadRequest(err.Error())
		}
		return c.JSON(http.StatusOK, prefs.Player())
	}
}

// HandleCompressionPut toggles the per-origin compression setting
// consulted at submission time.
func HandleCompressionPut(prefs *store.Preferences) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body compressionBody
		if err := c.Bind(&body); err != nil {
			return common.ErrBadRequest("invalid json")
		}
		if err := prefs.SetCompression(store.Origin(body.Origin), body.Enabled); err != nil {
			return common.ErrBadRequest(err.Error())
		}
		return c.JSON(http.StatusOK, true)
	}
}
