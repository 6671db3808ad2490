package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ProbeResult contains media file metadata.
type ProbeResult struct {
	Duration   float64 // Duration in seconds
	Size       int64   // File size in bytes
	Bitrate    int64   // Total bitrate in bits per second
	FormatName string  // Container format (mp4, webm, mkv, etc.)
	Width      int     // Video width in pixels
	Height     int     // Video height in pixels
	VideoCodec string  // Video codec name (h264, vp9, etc.)
}

// ffprobeOutput matches ffprobe JSON output structure.
type ffprobeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		Size       string `json:"size"`
		BitRate    string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// Probe runs ffprobe on a file and returns metadata.
func Probe(ctx context.Context, bin string, path string) (*ProbeResult, error) {
	if strings.TrimSpace(bin) == "" {
		bin = "ffprobe"
	}
	args := []string{
		"-hide_banner",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	cmd := exec.CommandContext(ctx, bin, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(stderr.String()))
	}

	var out ffprobeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("ffprobe %s: parse json: %w", path, err)
	}

	result := &ProbeResult{FormatName: out.Format.FormatName}
	result.Duration, _ = strconv.ParseFloat(out.Format.Duration, 64)
	result.Size, _ = strconv.ParseInt(out.Format.Size, 10, 64)
	result.Bitrate, _ = strconv.ParseInt(out.Format.BitRate, 10, 64)

	for _, s := range out.Streams {
		if s.CodecType == "video" && result.VideoCodec == "" {
			result.VideoCodec = s.CodecName
			result.Width = s.Width
			result.Height = s.Height
		}
	}

	return result, nil
}
