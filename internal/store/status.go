package store

import "fmt"

// StageState enumerates the lifecycle states a job stage moves through.
// Transitions are forward-only: waiting -> starting -> downloading ->
// completed, or one of the terminal failure states.
type StageState string

const (
	StateWaiting         StageState = "waiting"
	StateStarting        StageState = "starting"
	StateDownloading     StageState = "downloading"
	StateCompleted       StageState = "completed"
	StateUnfinished      StageState = "unfinished"
	StateFailed          StageState = "failed"
	StateToolUnavailable StageState = "tool-unavailable"
)

// Origin identifies how a video entered the system.
type Origin string

const (
	OriginStream Origin = "stream"
	OriginFull   Origin = "full"
	OriginTrim   Origin = "trim"
	OriginUpload Origin = "upload"
)

// Stage identifies one of the three sub-jobs tracked per video.
type Stage string

const (
	StageVideo       Stage = "video"
	StageCompression Stage = "compression"
	StageThumbnail   Stage = "thumbnail"
)

// StageStatus is the persisted status of a single stage.
type StageStatus struct {
	State StageState `json:"state"`
	// Origin is set while the video stage is starting; it selects the
	// user-facing starting tag.
	Origin Origin `json:"origin,omitempty"`
	// Percent is the last reported progress percentage.
	Percent float64 `json:"percent,omitempty"`
	// Timemark is the last reported output timestamp; live streams report
	// a timemark instead of a percentage because total duration is unknown.
	Timemark string `json:"timemark,omitempty"`
	// Reason carries failure or unavailable-tool detail.
	Reason string `json:"reason,omitempty"`
}

// Active reports whether the stage has a running external process.
func (s StageStatus) Active() bool {
	return s.State == StateStarting || s.State == StateDownloading
}

// Terminal reports whether the stage can make no further progress without
// outside intervention.
func (s StageStatus) Terminal() bool {
	switch s.State {
	case StateCompleted, StateFailed, StateToolUnavailable:
		return true
	}
	return false
}

// Completed reports stage success.
func (s StageStatus) Completed() bool { return s.State == StateCompleted }

// WithPercent returns a downloading status carrying the clamped percentage.
// Negative percentages clamp to zero, matching the wire format "0.00%".
func (s StageStatus) WithPercent(percent float64) StageStatus {
	if percent < 0 {
		percent = 0
	}
	s.State = StateDownloading
	s.Percent = percent
	s.Timemark = ""
	return s
}

// WithTimemark returns a downloading status carrying a timemark instead of
// a percentage.
func (s StageStatus) WithTimemark(timemark string) StageStatus {
	s.State = StateDownloading
	s.Timemark = timemark
	return s
}

// startingTags maps a video-stage origin to its user-facing starting tag.
var startingTags = map[Origin]string{
	OriginStream: "starting stream download",
	OriginFull:   "starting full video download",
	OriginTrim:   "starting trim video download",
	OriginUpload: "starting uploaded video download",
}

// Display renders the status in the user-facing vocabulary used by the
// downloads API: "waiting for video", "starting stream download", "45.00%",
// "completed", "unfinished download", "ffmpeg unavailable", ...
func (s StageStatus) Display(stage Stage) string {
	switch s.State {
	case StateWaiting:
		return "waiting for video"
	case StateStarting:
		switch stage {
		case StageCompression:
			return "starting video compression"
		case StageThumbnail:
			return "starting thumbnail download"
		default:
			if tag, ok := startingTags[s.Origin]; ok {
				return tag
			}
			return "starting video download"
		}
	case StateDownloading:
		if s.Timemark != "" {
			return s.Timemark
		}
		return fmt.Sprintf("%.2f%%", s.Percent)
	case StateCompleted:
		return "completed"
	case StateUnfinished:
		return "unfinished download"
	case StateToolUnavailable:
		if s.Reason != "" {
			return s.Reason
		}
		return "ffmpeg unavailable"
	case StateFailed:
		if s.Reason != "" {
			return "failed: " + s.Reason
		}
		return "failed"
	}
	return string(s.State)
}
