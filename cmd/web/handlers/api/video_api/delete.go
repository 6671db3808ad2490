package video_api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"thirdcoast.systems/vodstash/cmd/web/handlers/common"
	"thirdcoast.systems/vodstash/internal/job"
)

// HandleDelete removes an archived video: catalog record, ledger entry,
// and media files. A video whose pipeline is still running must be
// cancelled first.
func HandleDelete(orch *job.Orchestrator) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := common.RequireUUIDParam(c, "id")
		if err != nil {
			return err
		}

		if err := orch.DeleteVideo(c.Request().Context(), id); err != nil {
			if errors.Is(err, job.ErrUnknownID) {
				return common.ErrNotFound("unknown video")
			}
			if errors.Is(err, job.ErrJobActive) {
				return common.ErrConflict("video job still active; cancel it first")
			}
			slog.Error("delete failed", "id", id, "error", err)
			return common.ErrInternal("delete failed")
		}
		return c.JSON(http.StatusOK, true)
	}
}
