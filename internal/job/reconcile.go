package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sethvargo/go-retry"

	"thirdcoast.systems/vodstash/internal/store"
	"thirdcoast.systems/vodstash/pkg/untrunc"
)

// Resume verdicts returned to clients.
const (
	VerdictCompleted      = "download status: completed"
	VerdictThumbnails     = "redownload thumbnails"
	VerdictCompression    = "redownload compression"
	VerdictThumbnailsComp = "redownload thumbnails & compression"
	VerdictRepair         = "repairing truncated video"
)

// Reconcile replays the ledger after a restart and settles every entry
// left behind by a crash: entries with no real progress are purged,
// finished videos get their pending sub-stages marked resumable, and
// interrupted fetches are marked unfinished (or tool-unavailable when the
// repair toolchain is missing). It must run before submissions are
// accepted, and is idempotent.
func (o *Orchestrator) Reconcile() {
	o.mu.Lock()
	defer o.mu.Unlock()

	entries := o.ledger.All()
	if len(entries) > 0 {
		slog.Info("reconciling interrupted jobs", "count", len(entries))
	}
	for id, entry := range entries {
		o.reconcileEntry(id, entry)
	}
}

func (o *Orchestrator) reconcileEntry(id string, entry store.LedgerEntry) {
	v := entry.Video
	switch {
	case v.State == "" || v.State == store.StateWaiting || v.State == store.StateStarting:
		// Died before the fetch produced anything worth keeping.
		o.purgeLocked(id)
	case v.State == store.StateDownloading && v.Percent == 0 && v.Timemark == "":
		o.purgeLocked(id)
	case v.Completed():
		o.reconcileSubStages(id, entry)
	default:
		o.reconcileTruncated(id, entry)
	}
}

// reconcileSubStages settles the thumbnail/compression stages of an entry
// whose video fetch finished before the crash.
func (o *Orchestrator) reconcileSubStages(id string, entry store.LedgerEntry) {
	missing := o.transcoder.Missing()
	pendingState := store.StateUnfinished
	reason := ""
	if len(missing) > 0 {
		pendingState = store.StateToolUnavailable
		reason = unavailableReason(missing)
	}

	changed := false
	// A finished video always carries a thumbnail stage; restore it when
	// the crash predates its creation.
	if entry.Thumbnail == nil {
		entry.Thumbnail = &store.StageStatus{State: pendingState, Reason: reason}
		changed = true
	}
	for _, st := range []*store.StageStatus{entry.Thumbnail, entry.Compression} {
		if st == nil || st.Completed() {
			continue
		}
		if st.State != pendingState || st.Reason != reason {
			st.State = pendingState
			st.Reason = reason
			st.Percent = 0
			st.Timemark = ""
			changed = true
		}
	}

	if entry.Settled() {
		if _, err := o.ledger.Delete(id); err != nil {
			slog.Error("failed to drop settled ledger entry", "id", id, "error", err)
		}
		return
	}
	if changed {
		if err := o.ledger.Put(id, entry); err != nil {
			slog.Error("failed to persist ledger entry", "id", id, "error", err)
		}
	}
}

// reconcileTruncated marks a mid-fetch casualty as repairable, or records
// which part of the repair toolchain is missing.
func (o *Orchestrator) reconcileTruncated(id string, entry store.LedgerEntry) {
	st := entry.Video
	switch {
	case o.repair == nil || !o.repair.BinaryAvailable():
		st.State = store.StateToolUnavailable
		st.Reason = "untrunc unavailable"
	case !o.repair.ReferenceAvailable():
		st.State = store.StateToolUnavailable
		st.Reason = "working video for untrunc is unavailable"
	default:
		st.State = store.StateUnfinished
		st.Reason = ""
	}
	if st == entry.Video {
		return
	}
	entry.Video = st
	if err := o.ledger.Put(id, entry); err != nil {
		slog.Error("failed to persist ledger entry", "id", id, "error", err)
	}
}

// Resume restarts the pending work for a reconciled ledger entry. For a
// finished video it relaunches the unfinished sub-stages; for a truncated
// fetch it attempts a single container repair. The returned verdict says
// which path was taken.
func (o *Orchestrator) Resume(id string) (string, error) {
	o.mu.Lock()
	entry, ok := o.ledger.Get(id)
	if !ok {
		o.mu.Unlock()
		return "", ErrUnknownID
	}

	if entry.Video.Completed() {
		thumbPending := entry.Thumbnail != nil && !entry.Thumbnail.Completed()
		compPending := entry.Compression != nil && !entry.Compression.Completed()

		if !thumbPending && !compPending {
			if _, err := o.ledger.Delete(id); err != nil {
				slog.Error("failed to drop settled ledger entry", "id", id, "error", err)
			}
			o.mu.Unlock()
			return VerdictCompleted, nil
		}
		if missing := o.transcoder.Missing(); len(missing) > 0 {
			o.mu.Unlock()
			return "", &ToolUnavailableError{Missing: missing}
		}

		videoPath := o.videoPathLocked(id)
		if thumbPending {
			entry.Thumbnail = &store.StageStatus{State: store.StateStarting}
		}
		if compPending {
			entry.Compression = &store.StageStatus{State: store.StateStarting}
		}
		if err := o.ledger.Put(id, entry); err != nil {
			slog.Error("failed to persist ledger entry", "id", id, "error", err)
		}
		o.mu.Unlock()

		if thumbPending {
			o.wg.Add(1)
			go o.runThumbnail(id, videoPath)
		}
		if compPending {
			o.wg.Add(1)
			go o.runCompression(id, videoPath)
		}
		switch {
		case thumbPending && compPending:
			return VerdictThumbnailsComp, nil
		case compPending:
			return VerdictCompression, nil
		default:
			return VerdictThumbnails, nil
		}
	}
	o.mu.Unlock()

	// Truncated fetch: one bounded repair attempt.
	if missing := o.transcoder.Missing(); len(missing) > 0 {
		return "", &ToolUnavailableError{Missing: missing}
	}
	if o.repair == nil || !o.repair.BinaryAvailable() {
		return "", errors.New("job: untrunc unavailable")
	}
	if !o.repair.ReferenceAvailable() {
		return "", untrunc.ErrReferenceMissing
	}

	o.wg.Add(1)
	go o.runRepair(id)
	return VerdictRepair, nil
}

// videoPathLocked resolves the finished artifact path for id, preferring
// the catalog record. Caller holds o.mu.
func (o *Orchestrator) videoPathLocked(id string) string {
	if rec, ok := o.catalog.Get(id); ok && rec.Video.Path != "" {
		return rec.Video.Path
	}
	return filepath.Join(o.mediaDir, id, id+".mp4")
}

// runRepair fixes a truncated mp4 with untrunc and, on success, feeds the
// repaired file back through the normal fetch-completion path. Failure is
// terminal for the video stage; the artifacts stay on disk.
func (o *Orchestrator) runRepair(id string) {
	defer o.wg.Done()

	broken := filepath.Join(o.mediaDir, id, id+".mp4")
	fixed := untrunc.FixedPath(broken)

	if _, err := os.Stat(broken); err != nil {
		// The raw artifact is gone. A leftover repaired copy from an
		// interrupted earlier attempt can still be adopted.
		if _, err := os.Stat(fixed); err != nil {
			slog.Warn("nothing left to repair, purging", "id", id)
			o.mu.Lock()
			o.purgeLocked(id)
			o.mu.Unlock()
			return
		}
		if err := renameWithRetry(o.ctx, fixed, broken); err != nil {
			o.failStage(id, store.StageVideo, err)
			return
		}
		o.finishRepair(id, broken)
		return
	}

	slog.Info("repairing truncated video", "id", id)
	if err := o.repair.Repair(o.ctx, broken); err != nil {
		slog.Error("video repair failed", "id", id, "error", err)
		o.failStage(id, store.StageVideo, err)
		return
	}
	if err := os.Remove(broken); err != nil {
		o.failStage(id, store.StageVideo, err)
		return
	}
	if err := renameWithRetry(o.ctx, fixed, broken); err != nil {
		o.failStage(id, store.StageVideo, err)
		return
	}
	o.finishRepair(id, broken)
}

// finishRepair validates the repaired file and resumes the pipeline.
func (o *Orchestrator) finishRepair(id, videoPath string) {
	info, err := o.transcoder.Probe(o.ctx, videoPath)
	if err != nil {
		slog.Error("repaired video is unreadable", "id", id, "error", err)
		o.failStage(id, store.StageVideo, fmt.Errorf("repaired video unreadable: %w", err))
		return
	}
	if info.Duration <= 0 {
		slog.Warn("repaired video has no duration, purging", "id", id)
		o.mu.Lock()
		o.purgeLocked(id)
		o.mu.Unlock()
		return
	}
	slog.Info("video repaired", "id", id, "duration", info.Duration.Round(time.Second))
	o.completeFetch(id, videoPath)
}

// renameWithRetry retries a rename briefly to ride out transient holds on
// the file (antivirus, lingering writers).
func renameWithRetry(ctx context.Context, from, to string) error {
	b := retry.WithMaxRetries(10, retry.NewConstant(200*time.Millisecond))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		if err := os.Rename(from, to); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}
