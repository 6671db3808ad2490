package job

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"thirdcoast.systems/vodstash/internal/store"
	"thirdcoast.systems/vodstash/pkg/untrunc"
)

const defaultThumbnailCount = 8

// Params carries the orchestrator's dependencies.
type Params struct {
	Ledger      *store.Ledger
	Catalog     *store.Catalog
	Preferences *store.Preferences
	Transcoder  Transcoder
	Repair      *untrunc.Client

	MediaDir       string
	ThumbnailCount int
}

// Orchestrator drives the fetch -> (thumbnail | compression) pipeline for
// each submitted video and keeps the ledger and catalog documents
// consistent with what is actually on disk.
//
// A single mutex serializes every ledger/catalog transition; stage work
// itself (ffmpeg, frame extraction) runs outside the lock.
type Orchestrator struct {
	ledger      *store.Ledger
	catalog     *store.Catalog
	prefs       *store.Preferences
	transcoder  Transcoder
	repair      *untrunc.Client
	cancels     *CancelController

	mediaDir       string
	thumbnailCount int

	ctx context.Context
	mu  sync.Mutex
	wg  sync.WaitGroup

	newID func() string
}

// New builds an orchestrator. ctx bounds the lifetime of every media
// process it spawns; cancel it on shutdown.
func New(ctx context.Context, p Params) *Orchestrator {
	count := p.ThumbnailCount
	if count <= 0 {
		count = defaultThumbnailCount
	}
	return &Orchestrator{
		ledger:         p.Ledger,
		catalog:        p.Catalog,
		prefs:          p.Preferences,
		transcoder:     p.Transcoder,
		repair:         p.Repair,
		cancels:        NewCancelController(),
		mediaDir:       p.MediaDir,
		thumbnailCount: count,
		ctx:            ctx,
		newID:          uuid.NewString,
	}
}

// Wait blocks until every in-flight stage goroutine has finished. Used
// for graceful shutdown and by tests to join the pipeline.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Statuses renders every ledger entry in the user-facing vocabulary,
// keyed by video id.
func (o *Orchestrator) Statuses() map[string]map[string]string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]map[string]string)
	for id, entry := range o.ledger.All() {
		out[id] = entry.DisplayMap()
	}
	return out
}

// SubmitRequest describes one new video submission. Source is a playable
// URL for remote origins or a local file path for uploads.
type SubmitRequest struct {
	Origin     store.Origin
	Source     string
	SourceType string

	// Title is optional display metadata for the catalog.
	Title string

	// Trim window, used only for trim-origin submissions.
	TrimStart time.Duration
	TrimEnd   time.Duration

	// Cleanup, when set, runs once the fetch stage ends. Used to drop
	// temporary upload files after ffmpeg has consumed them.
	Cleanup func()
}

// Submit registers a new video, writes the initial ledger and catalog
// entries, and launches the fetch stage. It returns the assigned id.
func (o *Orchestrator) Submit(req SubmitRequest) (string, error) {
	if missing := o.transcoder.Missing(); len(missing) > 0 {
		return "", &ToolUnavailableError{Missing: missing}
	}

	id := o.newID()

	o.mu.Lock()
	if _, exists := o.ledger.Get(id); exists {
		o.mu.Unlock()
		return "", ErrIDCollision
	}
	if _, exists := o.catalog.Get(id); exists {
		o.mu.Unlock()
		return "", ErrIDCollision
	}

	dir := filepath.Join(o.mediaDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		o.mu.Unlock()
		return "", fmt.Errorf("create media dir: %w", err)
	}
	output := filepath.Join(dir, id+".mp4")

	entry := store.LedgerEntry{
		Video:     store.StageStatus{State: store.StateStarting, Origin: req.Origin},
		Thumbnail: &store.StageStatus{State: store.StateWaiting},
	}
	if o.prefs.CompressionEnabled(req.Origin) {
		entry.Compression = &store.StageStatus{State: store.StateWaiting}
	}
	record := store.VideoRecord{
		Title: req.Title,
		Video: store.VideoVariant{
			OriginalSource: req.Source,
			OriginalType:   req.SourceType,
			State:          store.StateStarting,
		},
	}
	if req.TrimEnd > req.TrimStart {
		record.Video.TrimStart = formatClock(req.TrimStart)
		record.Video.TrimEnd = formatClock(req.TrimEnd)
	}
	if err := o.ledger.Put(id, entry); err != nil {
		slog.Error("failed to persist ledger entry", "id", id, "error", err)
	}
	if err := o.catalog.Put(id, record); err != nil {
		slog.Error("failed to persist catalog record", "id", id, "error", err)
	}
	o.mu.Unlock()

	spec := TranscodeSpec{
		Kind:      SpecFetch,
		Input:     req.Source,
		Output:    output,
		Live:      req.Origin == store.OriginStream,
		TrimStart: req.TrimStart,
		TrimEnd:   req.TrimEnd,
	}
	proc, err := o.transcoder.Start(o.ctx, spec)
	if err != nil {
		if req.Cleanup != nil {
			req.Cleanup()
		}
		o.failStage(id, store.StageVideo, err)
		return "", &TranscodeError{Err: err}
	}

	slog.Info("video fetch started", "id", id, "origin", req.Origin, "source", req.Source)
	o.wg.Add(1)
	go o.runFetch(id, output, proc, req.Cleanup)
	return id, nil
}

// runFetch consumes progress ticks from the fetch process and hands off
// to the sub-stages on success.
func (o *Orchestrator) runFetch(id, output string, proc Process, cleanup func()) {
	defer o.wg.Done()
	if cleanup != nil {
		defer cleanup()
	}

	for ev := range proc.Events() {
		o.onFetchTick(id, ev, proc)
	}

	if err := proc.Wait(); err != nil {
		slog.Error("video fetch failed", "id", id, "error", err)
		o.failStage(id, store.StageVideo, err)
		return
	}
	o.completeFetch(id, output)
}

// onFetchTick records one progress tick on the video stage and checks for
// a pending cancellation. Cancellation stops ffmpeg cleanly so the partial
// file is finalized; the fetch then completes through the normal path.
func (o *Orchestrator) onFetchTick(id string, ev Event, proc Process) {
	o.mu.Lock()
	entry, ok := o.ledger.Get(id)
	if !ok {
		o.mu.Unlock()
		return
	}
	switch {
	case ev.Percent >= 0:
		entry.Video = entry.Video.WithPercent(ev.Percent)
	case ev.Timemark != "":
		entry.Video = entry.Video.WithTimemark(ev.Timemark)
	default:
		o.mu.Unlock()
		return
	}
	if err := o.ledger.Put(id, entry); err != nil {
		slog.Error("failed to persist ledger entry", "id", id, "error", err)
	}
	if rec, ok := o.catalog.Get(id); ok {
		rec.Video.State = store.StateDownloading
		if ev.Timemark != "" {
			rec.Video.Timemark = ev.Timemark
		}
		if err := o.catalog.Put(id, rec); err != nil {
			slog.Error("failed to persist catalog record", "id", id, "error", err)
		}
	}
	cancel := o.cancels.Match(CancelDownload, id)
	o.mu.Unlock()

	if cancel {
		slog.Info("stopping video fetch on request", "id", id)
		if err := proc.Stop(); err != nil {
			slog.Error("failed to stop fetch process", "id", id, "error", err)
		}
		o.cancels.Disarm(CancelDownload)
	}
}

// completeFetch marks the video stage done and launches the thumbnail and
// (when enabled) compression stages concurrently.
func (o *Orchestrator) completeFetch(id, output string) {
	if info, err := o.transcoder.Probe(o.ctx, output); err == nil {
		slog.Info("video fetch completed", "id", id,
			"size", humanize.Bytes(uint64(info.Size)),
			"duration", info.Duration.Round(time.Second))
	} else {
		slog.Info("video fetch completed", "id", id)
	}

	o.mu.Lock()
	entry, ok := o.ledger.Get(id)
	if !ok {
		// Purged while the fetch was finishing; do not resurrect it.
		o.mu.Unlock()
		return
	}
	rec, _ := o.catalog.Get(id)
	rec.Video.Path = output
	rec.Video.Type = "video/mp4"
	rec.Video.State = store.StateCompleted
	if err := o.catalog.Put(id, rec); err != nil {
		slog.Error("failed to persist catalog record", "id", id, "error", err)
	}

	origin := entry.Video.Origin
	entry.Video = store.StageStatus{State: store.StateCompleted, Origin: origin}
	entry.Thumbnail = &store.StageStatus{State: store.StateStarting}
	compress := entry.Compression != nil
	if compress {
		entry.Compression = &store.StageStatus{State: store.StateStarting}
	}
	if err := o.ledger.Put(id, entry); err != nil {
		slog.Error("failed to persist ledger entry", "id", id, "error", err)
	}
	o.mu.Unlock()

	o.wg.Add(1)
	go o.runThumbnail(id, output)
	if compress {
		o.wg.Add(1)
		go o.runCompression(id, output)
	}
}

// runThumbnail extracts evenly spaced preview frames from the finished
// video. A non-positive duration voids the whole video.
func (o *Orchestrator) runThumbnail(id, videoPath string) {
	defer o.wg.Done()

	info, err := o.transcoder.Probe(o.ctx, videoPath)
	if err != nil {
		slog.Error("thumbnail probe failed", "id", id, "error", err)
		o.failStage(id, store.StageThumbnail, err)
		return
	}
	if info.Duration <= 0 {
		slog.Warn("video has no duration, purging", "id", id)
		o.mu.Lock()
		o.purgeLocked(id)
		o.mu.Unlock()
		return
	}

	thumbDir := filepath.Join(o.mediaDir, id, "thumbnails")
	if err := os.MkdirAll(thumbDir, 0o755); err != nil {
		o.failStage(id, store.StageThumbnail, err)
		return
	}

	n := o.thumbnailCount
	paths := make(map[int]string, n)
	for i := 1; i <= n; i++ {
		offset := info.Duration * time.Duration(i) / time.Duration(n+1)
		out := filepath.Join(thumbDir, fmt.Sprintf("%s-%d.jpg", id, i))
		if err := o.transcoder.ExtractFrame(o.ctx, videoPath, out, offset); err != nil {
			slog.Error("thumbnail extraction failed", "id", id, "index", i, "error", err)
			o.failStage(id, store.StageThumbnail, err)
			return
		}
		paths[i] = out
		o.tickStage(id, store.StageThumbnail, Event{Percent: float64(i) / float64(n) * 100})
	}
	o.completeSubStage(id, store.StageThumbnail, func(rec *store.VideoRecord) {
		rec.Thumbnail = &store.ThumbnailSet{Paths: paths, State: store.StateCompleted}
	})
	slog.Info("thumbnails completed", "id", id, "count", n)
}

// runCompression re-encodes the finished video into a webm copy.
func (o *Orchestrator) runCompression(id, videoPath string) {
	defer o.wg.Done()

	output := filepath.Join(o.mediaDir, id, id+".webm")
	proc, err := o.transcoder.Start(o.ctx, TranscodeSpec{
		Kind:   SpecCompress,
		Input:  videoPath,
		Output: output,
	})
	if err != nil {
		o.failStage(id, store.StageCompression, err)
		return
	}

	killed := false
	for ev := range proc.Events() {
		o.tickStage(id, store.StageCompression, ev)
		if o.cancels.Match(CancelCompression, id) {
			slog.Info("killing compression on request", "id", id)
			if err := proc.Kill(); err != nil {
				slog.Error("failed to kill compression process", "id", id, "error", err)
			}
			o.cancels.Disarm(CancelCompression)
			killed = true
		}
	}

	if err := proc.Wait(); err != nil {
		if killed {
			err = fmt.Errorf("killed: %w", err)
		}
		slog.Error("compression failed", "id", id, "error", err)
		o.failStage(id, store.StageCompression, err)
		return
	}

	o.completeSubStage(id, store.StageCompression, func(rec *store.VideoRecord) {
		rec.Compression = &store.VideoVariant{
			Path:  output,
			Type:  "video/webm",
			State: store.StateCompleted,
		}
	})
	if info, err := o.transcoder.Probe(o.ctx, output); err == nil {
		slog.Info("compression completed", "id", id, "size", humanize.Bytes(uint64(info.Size)))
	} else {
		slog.Info("compression completed", "id", id)
	}
}

// tickStage records a progress tick against one ledger sub-stage.
func (o *Orchestrator) tickStage(id string, stage store.Stage, ev Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	entry, ok := o.ledger.Get(id)
	if !ok {
		return
	}
	st, ok := entry.Stage(stage)
	if !ok {
		return
	}
	switch {
	case ev.Percent >= 0:
		st = st.WithPercent(ev.Percent)
	case ev.Timemark != "":
		st = st.WithTimemark(ev.Timemark)
	default:
		return
	}
	entry.SetStage(stage, st)
	if err := o.ledger.Put(id, entry); err != nil {
		slog.Error("failed to persist ledger entry", "id", id, "error", err)
	}
}

// completeSubStage records a finished thumbnail or compression stage in
// the catalog and drops the ledger entry once every stage has settled.
func (o *Orchestrator) completeSubStage(id string, stage store.Stage, update func(*store.VideoRecord)) {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec, _ := o.catalog.Get(id)
	update(&rec)
	if err := o.catalog.Put(id, rec); err != nil {
		slog.Error("failed to persist catalog record", "id", id, "error", err)
	}

	entry, ok := o.ledger.Get(id)
	if !ok {
		return
	}
	entry.SetStage(stage, store.StageStatus{State: store.StateCompleted})
	if entry.Settled() {
		if _, err := o.ledger.Delete(id); err != nil {
			slog.Error("failed to drop settled ledger entry", "id", id, "error", err)
		}
		return
	}
	if err := o.ledger.Put(id, entry); err != nil {
		slog.Error("failed to persist ledger entry", "id", id, "error", err)
	}
}

// failStage marks a stage failed in the ledger. Partial artifacts stay on
// disk for inspection and reconciliation.
func (o *Orchestrator) failStage(id string, stage store.Stage, cause error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	entry, ok := o.ledger.Get(id)
	if !ok {
		return
	}
	st, _ := entry.Stage(stage)
	st.State = store.StateFailed
	st.Reason = shortReason(cause)
	entry.SetStage(stage, st)
	if err := o.ledger.Put(id, entry); err != nil {
		slog.Error("failed to persist ledger entry", "id", id, "error", err)
	}
}

// RequestCancel arms a cancellation for id on the given channel. It
// reports false when the targeted stage is absent or no longer active.
func (o *Orchestrator) RequestCancel(ch CancelChannel, id string) bool {
	stage := store.StageVideo
	if ch == CancelCompression {
		stage = store.StageCompression
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	entry, ok := o.ledger.Get(id)
	if !ok {
		return false
	}
	st, ok := entry.Stage(stage)
	if !ok || !st.Active() {
		return false
	}
	o.cancels.Arm(ch, id)
	return true
}

var errStillActive = fmt.Errorf("job: stages still active")

// AwaitSettled polls until no stage of id is active, or the poll budget
// runs out. A missing ledger entry counts as settled.
func (o *Orchestrator) AwaitSettled(ctx context.Context, id string) error {
	b := retry.WithMaxRetries(100, retry.NewConstant(50*time.Millisecond))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		o.mu.Lock()
		entry, ok := o.ledger.Get(id)
		o.mu.Unlock()
		if !ok {
			return nil
		}
		if entry.Video.Active() ||
			(entry.Compression != nil && entry.Compression.Active()) ||
			(entry.Thumbnail != nil && entry.Thumbnail.Active()) {
			return retry.RetryableError(errStillActive)
		}
		return nil
	})
}

// DeleteVideo removes a video's records and files. When a cancellation is
// pending for id it waits for the pipeline to settle first; an active
// pipeline without a pending cancellation is rejected.
func (o *Orchestrator) DeleteVideo(ctx context.Context, id string) error {
	o.mu.Lock()
	entry, inLedger := o.ledger.Get(id)
	_, inCatalog := o.catalog.Get(id)
	o.mu.Unlock()

	if !inLedger && !inCatalog {
		return ErrUnknownID
	}
	if inLedger {
		active := entry.Video.Active() ||
			(entry.Compression != nil && entry.Compression.Active()) ||
			(entry.Thumbnail != nil && entry.Thumbnail.Active())
		if active {
			if !o.cancels.PendingFor(id) {
				return ErrJobActive
			}
			if err := o.AwaitSettled(ctx, id); err != nil {
				return err
			}
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.purgeLocked(id)
	return nil
}

// purgeLocked drops both documents' records for id and removes the media
// directory. Caller holds o.mu.
func (o *Orchestrator) purgeLocked(id string) {
	if _, err := o.ledger.Delete(id); err != nil {
		slog.Error("failed to delete ledger entry", "id", id, "error", err)
	}
	if _, err := o.catalog.Delete(id); err != nil {
		slog.Error("failed to delete catalog record", "id", id, "error", err)
	}
	dir := filepath.Join(o.mediaDir, id)
	if err := os.RemoveAll(dir); err != nil {
		slog.Error("failed to remove media dir", "id", id, "error", err)
	}
	slog.Info("video purged", "id", id)
}

// formatClock renders a duration as HH:MM:SS for the catalog trim fields.
func formatClock(d time.Duration) string {
	total := int64(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
