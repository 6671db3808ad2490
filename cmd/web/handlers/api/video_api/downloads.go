package video_api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"thirdcoast.systems/vodstash/cmd/web/handlers/common"
	"thirdcoast.systems/vodstash/internal/job"
)

// HandleDownloadsIndex lists the in-flight and resumable jobs, rendered
// in the player's status vocabulary.
func HandleDownloadsIndex(orch *job.Orchestrator) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, orch.Statuses())
	}
}

// HandleResume restarts the pending work recorded for a reconciled job.
func HandleResume(orch *job.Orchestrator) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := common.RequireUUIDParam(c, "id")
		if err != nil {
			return err
		}

		verdict, err := orch.Resume(id)
		if err != nil {
			if errors.Is(err, job.ErrUnknownID) {
				return common.ErrNotFound("unknown download")
			}
			var tue *job.ToolUnavailableError
			if errors.As(err, &tue) {
				return c.JSON(http.StatusOK, tue.Sentinel())
			}
			slog.Error("resume failed", "id", id, "error", err)
			return common.ErrInternal("resume failed")
		}
		return c.JSON(http.StatusOK, verdict)
	}
}
