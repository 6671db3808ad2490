package store

// LedgerEntry tracks the in-flight job status of one video across its
// fetch, compression, and thumbnail stages. Compression is present only
// when compression was enabled at submission time; an entry whose video
// stage was never written is invalid and gets purged at reconciliation.
type LedgerEntry struct {
	Video       StageStatus  `json:"video"`
	Compression *StageStatus `json:"compression,omitempty"`
	Thumbnail   *StageStatus `json:"thumbnail,omitempty"`
}

// Ledger is the durable record of unfinished jobs keyed by video id.
type Ledger = Document[LedgerEntry]

// OpenLedger opens the job ledger document at path.
func OpenLedger(path string) (*Ledger, error) {
	return OpenDocument[LedgerEntry](path)
}

// Stage returns the status of the named stage, with ok=false when the
// stage is absent from the entry.
func (e LedgerEntry) Stage(stage Stage) (StageStatus, bool) {
	switch stage {
	case StageVideo:
		return e.Video, e.Video.State != ""
	case StageCompression:
		if e.Compression == nil {
			return StageStatus{}, false
		}
		return *e.Compression, true
	case StageThumbnail:
		if e.Thumbnail == nil {
			return StageStatus{}, false
		}
		return *e.Thumbnail, true
	}
	return StageStatus{}, false
}

// SetStage replaces the status of the named stage, creating the sub-stage
// when absent.
func (e *LedgerEntry) SetStage(stage Stage, s StageStatus) {
	switch stage {
	case StageVideo:
		e.Video = s
	case StageCompression:
		e.Compression = &s
	case StageThumbnail:
		e.Thumbnail = &s
	}
}

// Settled reports whether every present stage has completed, meaning the
// entry can be forgotten.
func (e LedgerEntry) Settled() bool {
	if !e.Video.Completed() {
		return false
	}
	if e.Compression != nil && !e.Compression.Completed() {
		return false
	}
	if e.Thumbnail != nil && !e.Thumbnail.Completed() {
		return false
	}
	return true
}

// DisplayMap renders the entry in the user-facing status vocabulary.
func (e LedgerEntry) DisplayMap() map[string]string {
	out := map[string]string{
		"video": e.Video.Display(StageVideo),
	}
	if e.Compression != nil {
		out["compression"] = e.Compression.Display(StageCompression)
	}
	if e.Thumbnail != nil {
		out["thumbnail"] = e.Thumbnail.Display(StageThumbnail)
	}
	return out
}
