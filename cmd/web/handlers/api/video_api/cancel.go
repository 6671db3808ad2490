package video_api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"thirdcoast.systems/vodstash/cmd/web/handlers/common"
	"thirdcoast.systems/vodstash/internal/job"
)

type cancelBody struct {
	ID string `json:"id"`
}

// HandleCancelDownload arms a cancellation for an in-flight fetch. The
// download stops cleanly at its next progress tick, keeping the partial
// file playable.
func HandleCancelDownload(orch *job.Orchestrator) echo.HandlerFunc {
	return cancelHandler(orch, job.CancelDownload)
}

// HandleCancelCompression arms a cancellation for an in-flight
// compression. The encoder is killed outright; the unfinished webm is
// abandoned.
func HandleCancelCompression(orch *job.Orchestrator) echo.HandlerFunc {
	return cancelHandler(orch, job.CancelCompression)
}

func cancelHandler(orch *job.Orchestrator, ch job.CancelChannel) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body cancelBody
		if err := c.Bind(&body); err != nil || body.ID == "" {
			return common.ErrBadRequest("missing id")
		}
		// False means the targeted stage is absent or already terminal;
		// the client gets the negative ack rather than an error.
		accepted := orch.RequestCancel(ch, body.ID)
		return c.JSON(http.StatusOK, accepted)
	}
}
