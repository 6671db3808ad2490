// package job coordinates video fetch, thumbnail, and compression work
// against the durable ledger and catalog documents.
package job

import (
	"context"
	"time"
)

// SpecKind selects the transcode profile for a media job.
type SpecKind string

const (
	// SpecFetch downloads/remuxes a source into the local mp4 artifact.
	SpecFetch SpecKind = "fetch"
	// SpecCompress re-encodes a finished artifact into VP9 webm.
	SpecCompress SpecKind = "compress"
)

// TranscodeSpec describes one media job handed to the transcoder.
type TranscodeSpec struct {
	Kind   SpecKind
	Input  string
	Output string

	// Live marks an unbounded input; progress is reported by timemark
	// instead of percent.
	Live bool

	// Trim window, honored only when TrimEnd > TrimStart.
	TrimStart time.Duration
	TrimEnd   time.Duration
}

// Event is one progress tick from a running media job. Percent is
// negative when the total duration is unknown.
type Event struct {
	Percent  float64
	Timemark string
}

// Process is a running media job.
type Process interface {
	// Events yields progress ticks until the job finishes.
	Events() <-chan Event
	// Wait blocks until the job exits and returns its final error.
	Wait() error
	// Stop asks the job to finalize and exit cleanly.
	Stop() error
	// Kill terminates the job immediately.
	Kill() error
}

// MediaInfo is the subset of probe output the orchestrator cares about.
type MediaInfo struct {
	Duration time.Duration
	Size     int64
}

// Transcoder abstracts the media toolchain so the orchestrator can be
// exercised without spawning real processes.
type Transcoder interface {
	// Missing reports required binaries that cannot be located.
	Missing() []string
	// Start launches a media job described by spec.
	Start(ctx context.Context, spec TranscodeSpec) (Process, error)
	// ExtractFrame writes a single frame at offset to the output path.
	ExtractFrame(ctx context.Context, input, output string, offset time.Duration) error
	// Probe inspects a finished media file.
	Probe(ctx context.Context, path string) (*MediaInfo, error)
}
