package job

import (
	"context"
	"time"

	"thirdcoast.systems/vodstash/pkg/ffmpeg"
)

// vp9CRF balances webm size against quality for archived videos.
const vp9CRF = 32

// thumbnailWidth caps preview image width; smaller sources keep their size.
const thumbnailWidth = 640

// FFmpegTranscoder runs media jobs through the local ffmpeg/ffprobe
// binaries.
type FFmpegTranscoder struct {
	tools ffmpeg.Toolset
}

// NewFFmpegTranscoder builds a transcoder over the given binary paths.
// Empty paths fall back to PATH lookup of the conventional names.
func NewFFmpegTranscoder(ffmpegPath, ffprobePath string) *FFmpegTranscoder {
	return &FFmpegTranscoder{
		tools: ffmpeg.Toolset{FFmpeg: ffmpegPath, FFprobe: ffprobePath},
	}
}

// Missing implements Transcoder.
func (t *FFmpegTranscoder) Missing() []string {
	return t.tools.Missing()
}

// Probe implements Transcoder.
func (t *FFmpegTranscoder) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	res, err := ffmpeg.Probe(ctx, t.tools.FFprobe, path)
	if err != nil {
		return nil, err
	}
	return &MediaInfo{
		Duration: time.Duration(res.Duration * float64(time.Second)),
		Size:     res.Size,
	}, nil
}

// ExtractFrame implements Transcoder.
func (t *FFmpegTranscoder) ExtractFrame(ctx context.Context, input, output string, offset time.Duration) error {
	cmd := ffmpeg.NewCommand(input, output,
		ffmpeg.Binary(t.tools.FFmpeg),
		ffmpeg.Seek(offset),
		ffmpeg.Frames(1),
		ffmpeg.Quality(4),
		ffmpeg.ScaleWidth(thumbnailWidth),
	)
	return cmd.Run(ctx)
}

// Start implements Transcoder. Fetch jobs stream-copy the source into the
// mp4 artifact; compression jobs re-encode it to VP9 webm.
func (t *FFmpegTranscoder) Start(ctx context.Context, spec TranscodeSpec) (Process, error) {
	opts := []ffmpeg.Option{ffmpeg.Binary(t.tools.FFmpeg)}
	var total time.Duration

	switch spec.Kind {
	case SpecCompress:
		opts = append(opts,
			ffmpeg.VideoCodec("libvpx-vp9"),
			ffmpeg.CRF(vp9CRF),
			ffmpeg.VideoBitrate("0"),
			ffmpeg.AudioCodec("libopus"),
		)
		if info, err := t.Probe(ctx, spec.Input); err == nil {
			total = info.Duration
		}
	default:
		switch {
		case spec.Live:
			// HLS segments arrive as ADTS AAC; mp4 needs the bitstream
			// filter to remux them.
			opts = append(opts, ffmpeg.CopyAll, ffmpeg.ExtraArgs("-bsf:a", "aac_adtstoasc"))
		case spec.TrimEnd > spec.TrimStart:
			opts = append(opts, ffmpeg.SeekTo(spec.TrimStart, spec.TrimEnd), ffmpeg.CopyAll)
			total = spec.TrimEnd - spec.TrimStart
		default:
			opts = append(opts, ffmpeg.CopyAll)
			if info, err := t.Probe(ctx, spec.Input); err == nil {
				total = info.Duration
			}
		}
	}

	progress := make(chan ffmpeg.Progress, 8)
	proc, err := ffmpeg.NewCommand(spec.Input, spec.Output, opts...).StartWithProgress(ctx, progress)
	if err != nil {
		return nil, err
	}

	events := make(chan Event, 8)
	go func() {
		defer close(events)
		for p := range progress {
			ev := Event{Percent: p.Percent(total)}
			if ev.Percent < 0 {
				ev.Timemark = p.Timemark()
			}
			events <- ev
		}
	}()

	return &ffmpegProcess{proc: proc, events: events}, nil
}

type ffmpegProcess struct {
	proc   *ffmpeg.Process
	events chan Event
}

func (p *ffmpegProcess) Events() <-chan Event { return p.events }
func (p *ffmpegProcess) Wait() error          { return p.proc.Wait() }
func (p *ffmpegProcess) Stop() error          { return p.proc.Stop() }
func (p *ffmpegProcess) Kill() error          { return p.proc.Kill() }
