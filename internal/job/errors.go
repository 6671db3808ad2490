package job

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrIDCollision is returned when a freshly generated video id is
	// already present in the ledger or catalog.
	ErrIDCollision = errors.New("job: video id already in use")

	// ErrUnknownID is returned for operations against an id with no
	// ledger or catalog record.
	ErrUnknownID = errors.New("job: unknown video id")

	// ErrJobActive is returned when deletion is requested for a video
	// whose pipeline is still running and no cancellation is pending.
	ErrJobActive = errors.New("job: video job still active")
)

// ToolUnavailableError reports missing required binaries. Submissions are
// rejected with this error before any state is written.
type ToolUnavailableError struct {
	Missing []string
}

func (e *ToolUnavailableError) Error() string {
	return "job: required tools unavailable: " + strings.Join(e.Missing, ", ")
}

// Sentinel returns the wire token clients key their error handling on.
func (e *ToolUnavailableError) Sentinel() string {
	has := func(name string) bool {
		for _, m := range e.Missing {
			if m == name {
				return true
			}
		}
		return false
	}
	switch {
	case has("ffmpeg") && has("ffprobe"):
		return "Cannot-find-ffmpeg-ffprobe"
	case has("ffmpeg"):
		return "Cannot-find-ffmpeg"
	case has("ffprobe"):
		return "Cannot-find-ffprobe"
	}
	return "Cannot-find-" + strings.Join(e.Missing, "-")
}

// unavailableReason renders the missing-tool set in the status vocabulary
// used for reconciled ledger entries.
func unavailableReason(missing []string) string {
	switch len(missing) {
	case 0:
		return ""
	case 1:
		return missing[0] + " unavailable"
	}
	return strings.Join(missing[:len(missing)-1], ", ") + " and " + missing[len(missing)-1] + " unavailable"
}

// shortReason compresses an error into a single-line status reason.
func shortReason(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	const max = 200
	if len(msg) > max {
		msg = msg[:max]
	}
	return msg
}

// TranscodeError wraps a media job failure for surfacing to clients.
type TranscodeError struct {
	Err error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("job: transcode failed: %v", e.Err)
}

func (e *TranscodeError) Unwrap() error { return e.Err }
