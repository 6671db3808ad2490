package ffmpeg

import (
	"os"
	"os/exec"
	"strings"
)

// Toolset points at the external binaries the transcode pipeline depends
// on. Paths may be bare names (resolved against PATH) or absolute paths.
type Toolset struct {
	FFmpeg  string
	FFprobe string
}

// Missing returns the names of binaries that cannot be resolved, in a
// stable order. An empty slice means the toolset is usable.
func (t Toolset) Missing() []string {
	var missing []string
	if !binaryExists(t.FFmpeg, "ffmpeg") {
		missing = append(missing, "ffmpeg")
	}
	if !binaryExists(t.FFprobe, "ffprobe") {
		missing = append(missing, "ffprobe")
	}
	return missing
}

// binaryExists resolves path (or fallback when path is empty) either on
// disk or via PATH lookup.
func binaryExists(path, fallback string) bool {
	p := strings.TrimSpace(path)
	if p == "" {
		p = fallback
	}
	if strings.ContainsRune(p, os.PathSeparator) {
		_, err := os.Stat(p)
		return err == nil
	}
	_, err := exec.LookPath(p)
	return err == nil
}
