package store

// VideoVariant describes one servable rendition of a video: the original
// fetch or the compressed copy.
type VideoVariant struct {
	OriginalSource string     `json:"originalSource,omitempty"`
	OriginalType   string     `json:"originalType,omitempty"`
	Path           string     `json:"path,omitempty"`
	Type           string     `json:"type,omitempty"`
	State          StageState `json:"state"`
	// Timemark is the last ffmpeg output timestamp observed for a live
	// stream fetch, retained for display.
	Timemark string `json:"timemark,omitempty"`
	// Trim window, recorded for trim-origin downloads.
	TrimStart string `json:"trimStart,omitempty"`
	TrimEnd   string `json:"trimEnd,omitempty"`
}

// ThumbnailSet indexes the generated preview images. Paths keys are
// contiguous integers starting at 1.
type ThumbnailSet struct {
	Paths map[int]string `json:"paths"`
	State StageState     `json:"state"`
}

// VideoRecord is the catalog entry for one video id.
type VideoRecord struct {
	// Title is the source page's title (or upload filename), kept for
	// display. Best effort; may be empty.
	Title       string        `json:"title,omitempty"`
	Video       VideoVariant  `json:"video"`
	Compression *VideoVariant `json:"compression,omitempty"`
	Thumbnail   *ThumbnailSet `json:"thumbnail,omitempty"`
}

// Catalog is the durable record of finished video metadata keyed by id.
type Catalog = Document[VideoRecord]

// OpenCatalog opens the catalog document at path.
func OpenCatalog(path string) (*Catalog, error) {
	return OpenDocument[VideoRecord](path)
}

// Variant returns the requested rendition: the compressed copy when
// compressed is true, otherwise the original.
func (r VideoRecord) Variant(compressed bool) (VideoVariant, bool) {
	if compressed {
		if r.Compression == nil {
			return VideoVariant{}, false
		}
		return *r.Compression, true
	}
	return r.Video, true
}
