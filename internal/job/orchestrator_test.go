package job

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thirdcoast.systems/vodstash/internal/store"
)

type fakeJob struct {
	events  chan Event
	waitErr error

	mu      sync.Mutex
	stopped bool
	killed  bool
}

func newFakeJob() *fakeJob {
	return &fakeJob{events: make(chan Event, 16)}
}

func (j *fakeJob) Events() <-chan Event { return j.events }
func (j *fakeJob) Wait() error          { return j.waitErr }

func (j *fakeJob) Stop() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stopped = true
	return nil
}

func (j *fakeJob) Kill() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.killed = true
	return nil
}

func (j *fakeJob) wasStopped() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stopped
}

func (j *fakeJob) wasKilled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.killed
}

type fakeTranscoder struct {
	mu       sync.Mutex
	missing  []string
	fetchJob *fakeJob
	compJob  *fakeJob
	specs    []TranscodeSpec
	startErr error

	info     MediaInfo
	probeErr error

	frames   []string
	frameErr error
}

func newFakeTranscoder() *fakeTranscoder {
	return &fakeTranscoder{
		fetchJob: newFakeJob(),
		compJob:  newFakeJob(),
		info:     MediaInfo{Duration: 90 * time.Second, Size: 1 << 20},
	}
}

func (f *fakeTranscoder) Missing() []string { return f.missing }

func (f *fakeTranscoder) Start(_ context.Context, spec TranscodeSpec) (Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.specs = append(f.specs, spec)
	if f.startErr != nil {
		return nil, f.startErr
	}
	if spec.Kind == SpecCompress {
		return f.compJob, nil
	}
	return f.fetchJob, nil
}

func (f *fakeTranscoder) ExtractFrame(_ context.Context, _, output string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.frameErr != nil {
		return f.frameErr
	}
	f.frames = append(f.frames, output)
	return nil
}

func (f *fakeTranscoder) Probe(context.Context, string) (*MediaInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.probeErr != nil {
		return nil, f.probeErr
	}
	info := f.info
	return &info, nil
}

func (f *fakeTranscoder) startedSpecs() []TranscodeSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]TranscodeSpec(nil), f.specs...)
}

type testEnv struct {
	orch    *Orchestrator
	trans   *fakeTranscoder
	ledger  *store.Ledger
	catalog *store.Catalog
	prefs   *store.Preferences
	media   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	ledger, err := store.OpenLedger(filepath.Join(dir, "current-downloads.json"))
	require.NoError(t, err)
	catalog, err := store.OpenCatalog(filepath.Join(dir, "videos.json"))
	require.NoError(t, err)
	prefs, err := store.OpenPreferences(filepath.Join(dir, "preferences.json"))
	require.NoError(t, err)

	trans := newFakeTranscoder()
	media := filepath.Join(dir, "media")
	orch := New(context.Background(), Params{
		Ledger:         ledger,
		Catalog:        catalog,
		Preferences:    prefs,
		Transcoder:     trans,
		MediaDir:       media,
		ThumbnailCount: 3,
	})

	next := 0
	orch.newID = func() string {
		next++
		return "video-" + string(rune('a'+next-1))
	}

	return &testEnv{orch: orch, trans: trans, ledger: ledger, catalog: catalog, prefs: prefs, media: media}
}

func TestSubmitRejectsWhenToolsMissing(t *testing.T) {
	env := newTestEnv(t)
	env.trans.missing = []string{"ffmpeg", "ffprobe"}

	_, err := env.orch.Submit(SubmitRequest{Origin: store.OriginFull, Source: "http://example.com/v.mp4"})

	var tue *ToolUnavailableError
	require.ErrorAs(t, err, &tue)
	assert.Equal(t, "Cannot-find-ffmpeg-ffprobe", tue.Sentinel())
	assert.Zero(t, env.ledger.Len(), "no ledger entry should be written")
	assert.Zero(t, env.catalog.Len(), "no catalog record should be written")
}

func TestSubmitWritesInitialState(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.prefs.SetCompression(store.OriginFull, true))

	id, err := env.orch.Submit(SubmitRequest{
		Origin:     store.OriginFull,
		Source:     "http://example.com/v.mp4",
		SourceType: "video/mp4",
	})
	require.NoError(t, err)

	entry, ok := env.ledger.Get(id)
	require.True(t, ok)
	assert.Equal(t, store.StateStarting, entry.Video.State)
	assert.Equal(t, store.OriginFull, entry.Video.Origin)
	require.NotNil(t, entry.Compression)
	assert.Equal(t, store.StateWaiting, entry.Compression.State)
	require.NotNil(t, entry.Thumbnail)
	assert.Equal(t, store.StateWaiting, entry.Thumbnail.State)

	rec, ok := env.catalog.Get(id)
	require.True(t, ok)
	assert.Equal(t, "http://example.com/v.mp4", rec.Video.OriginalSource)
	assert.Equal(t, store.StateStarting, rec.Video.State)

	info, err := os.Stat(filepath.Join(env.media, id))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	close(env.trans.compJob.events)
	close(env.trans.fetchJob.events)
	env.orch.Wait()
}

func TestPipelineCompletesAndSettlesLedger(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.prefs.SetCompression(store.OriginFull, true))

	// Compression finishes instantly.
	close(env.trans.compJob.events)

	id, err := env.orch.Submit(SubmitRequest{Origin: store.OriginFull, Source: "http://example.com/v.mp4"})
	require.NoError(t, err)

	env.trans.fetchJob.events <- Event{Percent: 45}
	env.trans.fetchJob.events <- Event{Percent: 100}
	close(env.trans.fetchJob.events)
	env.orch.Wait()

	_, ok := env.ledger.Get(id)
	assert.False(t, ok, "settled entry should leave the ledger")

	rec, ok := env.catalog.Get(id)
	require.True(t, ok)
	assert.Equal(t, store.StateCompleted, rec.Video.State)
	assert.Equal(t, filepath.Join(env.media, id, id+".mp4"), rec.Video.Path)
	assert.Equal(t, "video/mp4", rec.Video.Type)

	require.NotNil(t, rec.Compression)
	assert.Equal(t, store.StateCompleted, rec.Compression.State)
	assert.Equal(t, filepath.Join(env.media, id, id+".webm"), rec.Compression.Path)
	assert.Equal(t, "video/webm", rec.Compression.Type)

	require.NotNil(t, rec.Thumbnail)
	assert.Equal(t, store.StateCompleted, rec.Thumbnail.State)
	assert.Len(t, rec.Thumbnail.Paths, 3)
	for i := 1; i <= 3; i++ {
		assert.Contains(t, rec.Thumbnail.Paths[i], id+"-")
	}

	specs := env.trans.startedSpecs()
	require.Len(t, specs, 2)
	assert.Equal(t, SpecFetch, specs[0].Kind)
	assert.Equal(t, SpecCompress, specs[1].Kind)
}

func TestPipelineWithoutCompression(t *testing.T) {
	env := newTestEnv(t)

	id, err := env.orch.Submit(SubmitRequest{Origin: store.OriginFull, Source: "http://example.com/v.mp4"})
	require.NoError(t, err)

	close(env.trans.fetchJob.events)
	env.orch.Wait()

	_, ok := env.ledger.Get(id)
	assert.False(t, ok)

	rec, ok := env.catalog.Get(id)
	require.True(t, ok)
	assert.Nil(t, rec.Compression)
	require.NotNil(t, rec.Thumbnail)
	assert.Equal(t, store.StateCompleted, rec.Thumbnail.State)

	specs := env.trans.startedSpecs()
	require.Len(t, specs, 1, "no compression job should start")
}

func TestLiveStreamTicksRecordTimemark(t *testing.T) {
	env := newTestEnv(t)

	id, err := env.orch.Submit(SubmitRequest{Origin: store.OriginStream, Source: "http://example.com/live.m3u8"})
	require.NoError(t, err)

	specs := env.trans.startedSpecs()
	require.Len(t, specs, 1)
	assert.True(t, specs[0].Live)

	env.trans.fetchJob.events <- Event{Percent: -1, Timemark: "00:01:30.25"}
	require.Eventually(t, func() bool {
		entry, ok := env.ledger.Get(id)
		return ok && entry.Video.Timemark == "00:01:30.25"
	}, time.Second, 5*time.Millisecond)

	entry, _ := env.ledger.Get(id)
	assert.Equal(t, "00:01:30.25", entry.Video.Display(store.StageVideo))

	close(env.trans.fetchJob.events)
	env.orch.Wait()
}

func TestFetchFailureMarksVideoStageFailed(t *testing.T) {
	env := newTestEnv(t)
	env.trans.fetchJob.waitErr = errors.New("connection reset by peer")

	id, err := env.orch.Submit(SubmitRequest{Origin: store.OriginFull, Source: "http://example.com/v.mp4"})
	require.NoError(t, err)

	env.trans.fetchJob.events <- Event{Percent: 12}
	close(env.trans.fetchJob.events)
	env.orch.Wait()

	entry, ok := env.ledger.Get(id)
	require.True(t, ok, "failed entry must stay in the ledger")
	assert.Equal(t, store.StateFailed, entry.Video.State)
	assert.Equal(t, "connection reset by peer", entry.Video.Reason)
	assert.Equal(t, "failed: connection reset by peer", entry.Video.Display(store.StageVideo))

	// Artifacts are preserved for inspection.
	_, err = os.Stat(filepath.Join(env.media, id))
	assert.NoError(t, err)
}

func TestZeroDurationVideoIsPurged(t *testing.T) {
	env := newTestEnv(t)
	env.trans.info = MediaInfo{Duration: 0}

	id, err := env.orch.Submit(SubmitRequest{Origin: store.OriginFull, Source: "http://example.com/v.mp4"})
	require.NoError(t, err)

	close(env.trans.fetchJob.events)
	env.orch.Wait()

	_, inLedger := env.ledger.Get(id)
	assert.False(t, inLedger)
	_, inCatalog := env.catalog.Get(id)
	assert.False(t, inCatalog)
	_, statErr := os.Stat(filepath.Join(env.media, id))
	assert.True(t, os.IsNotExist(statErr), "media dir should be removed")
}

func TestEntrySurvivesUntilAllStagesSettle(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.prefs.SetCompression(store.OriginFull, true))

	id, err := env.orch.Submit(SubmitRequest{Origin: store.OriginFull, Source: "http://example.com/v.mp4"})
	require.NoError(t, err)

	close(env.trans.fetchJob.events)

	// Thumbnails finish while compression is still running; the entry
	// must survive with the thumbnail stage marked completed.
	require.Eventually(t, func() bool {
		entry, ok := env.ledger.Get(id)
		return ok && entry.Thumbnail != nil && entry.Thumbnail.Completed()
	}, time.Second, 5*time.Millisecond)

	entry, ok := env.ledger.Get(id)
	require.True(t, ok)
	require.NotNil(t, entry.Compression)
	assert.False(t, entry.Compression.Completed())

	close(env.trans.compJob.events)
	env.orch.Wait()

	_, ok = env.ledger.Get(id)
	assert.False(t, ok)
}

func TestCancelDownloadStopsProcessGracefully(t *testing.T) {
	env := newTestEnv(t)

	id, err := env.orch.Submit(SubmitRequest{Origin: store.OriginFull, Source: "http://example.com/v.mp4"})
	require.NoError(t, err)

	env.trans.fetchJob.events <- Event{Percent: 10}
	require.Eventually(t, func() bool {
		entry, ok := env.ledger.Get(id)
		return ok && entry.Video.State == store.StateDownloading
	}, time.Second, 5*time.Millisecond)

	require.True(t, env.orch.RequestCancel(CancelDownload, id))

	env.trans.fetchJob.events <- Event{Percent: 20}
	require.Eventually(t, env.trans.fetchJob.wasStopped, time.Second, 5*time.Millisecond)

	// A graceful stop finalizes the file; the pipeline then completes
	// through the normal path.
	close(env.trans.fetchJob.events)
	env.orch.Wait()

	rec, ok := env.catalog.Get(id)
	require.True(t, ok)
	assert.Equal(t, store.StateCompleted, rec.Video.State)

	_, armed := env.orch.cancels.Target(CancelDownload)
	assert.False(t, armed, "cancellation should be disarmed after acting")
}

func TestCancelCompressionKillsProcess(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.prefs.SetCompression(store.OriginFull, true))
	env.trans.compJob.waitErr = errors.New("signal: killed")

	id, err := env.orch.Submit(SubmitRequest{Origin: store.OriginFull, Source: "http://example.com/v.mp4"})
	require.NoError(t, err)

	close(env.trans.fetchJob.events)

	require.Eventually(t, func() bool {
		entry, ok := env.ledger.Get(id)
		return ok && entry.Compression != nil && entry.Compression.State == store.StateStarting
	}, time.Second, 5*time.Millisecond)

	require.True(t, env.orch.RequestCancel(CancelCompression, id))

	env.trans.compJob.events <- Event{Percent: 30}
	require.Eventually(t, env.trans.compJob.wasKilled, time.Second, 5*time.Millisecond)

	close(env.trans.compJob.events)
	env.orch.Wait()

	entry, ok := env.ledger.Get(id)
	require.True(t, ok)
	require.NotNil(t, entry.Compression)
	assert.Equal(t, store.StateFailed, entry.Compression.State)
	assert.Contains(t, entry.Compression.Reason, "killed")
}

func TestCancelRejectsInactiveStage(t *testing.T) {
	env := newTestEnv(t)

	id, err := env.orch.Submit(SubmitRequest{Origin: store.OriginFull, Source: "http://example.com/v.mp4"})
	require.NoError(t, err)
	close(env.trans.fetchJob.events)
	env.orch.Wait()

	assert.False(t, env.orch.RequestCancel(CancelDownload, id), "completed stage cannot be cancelled")
	assert.False(t, env.orch.RequestCancel(CancelDownload, "missing-id"))
	assert.False(t, env.orch.RequestCancel(CancelCompression, id), "absent compression stage cannot be cancelled")
}

func TestDeleteVideoRemovesEverything(t *testing.T) {
	env := newTestEnv(t)

	id, err := env.orch.Submit(SubmitRequest{Origin: store.OriginFull, Source: "http://example.com/v.mp4"})
	require.NoError(t, err)
	close(env.trans.fetchJob.events)
	env.orch.Wait()

	require.NoError(t, env.orch.DeleteVideo(context.Background(), id))

	_, ok := env.catalog.Get(id)
	assert.False(t, ok)
	_, statErr := os.Stat(filepath.Join(env.media, id))
	assert.True(t, os.IsNotExist(statErr))

	assert.ErrorIs(t, env.orch.DeleteVideo(context.Background(), id), ErrUnknownID)
}

func TestDeleteVideoRejectsActiveJobWithoutCancel(t *testing.T) {
	env := newTestEnv(t)

	id, err := env.orch.Submit(SubmitRequest{Origin: store.OriginFull, Source: "http://example.com/v.mp4"})
	require.NoError(t, err)

	err = env.orch.DeleteVideo(context.Background(), id)
	assert.ErrorIs(t, err, ErrJobActive)

	close(env.trans.fetchJob.events)
	env.orch.Wait()
}

func TestSubmitRejectsIDCollision(t *testing.T) {
	env := newTestEnv(t)
	env.orch.newID = func() string { return "fixed-id" }

	_, err := env.orch.Submit(SubmitRequest{Origin: store.OriginFull, Source: "http://example.com/a.mp4"})
	require.NoError(t, err)

	_, err = env.orch.Submit(SubmitRequest{Origin: store.OriginFull, Source: "http://example.com/b.mp4"})
	assert.ErrorIs(t, err, ErrIDCollision)

	close(env.trans.fetchJob.events)
	env.orch.Wait()
}

func TestStatusesRendersDisplayVocabulary(t *testing.T) {
	env := newTestEnv(t)

	id, err := env.orch.Submit(SubmitRequest{Origin: store.OriginTrim, Source: "http://example.com/v.mp4",
		TrimStart: 5 * time.Second, TrimEnd: 15 * time.Second})
	require.NoError(t, err)

	statuses := env.orch.Statuses()
	require.Contains(t, statuses, id)
	assert.Equal(t, "starting trim video download", statuses[id]["video"])
	assert.Equal(t, "waiting for video", statuses[id]["thumbnail"])

	rec, ok := env.catalog.Get(id)
	require.True(t, ok)
	assert.Equal(t, "00:00:05", rec.Video.TrimStart)
	assert.Equal(t, "00:00:15", rec.Video.TrimEnd)

	close(env.trans.fetchJob.events)
	env.orch.Wait()
}
