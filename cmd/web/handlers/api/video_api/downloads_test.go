package video_api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thirdcoast.systems/vodstash/internal/job"
	"thirdcoast.systems/vodstash/internal/store"
)

type noopTranscoder struct{}

func (noopTranscoder) Missing() []string { return nil }
func (noopTranscoder) Start(context.Context, job.TranscodeSpec) (job.Process, error) {
	return nil, errors.New("not available in tests")
}
func (noopTranscoder) ExtractFrame(context.Context, string, string, time.Duration) error {
	return errors.New("not available in tests")
}
func (noopTranscoder) Probe(context.Context, string) (*job.MediaInfo, error) {
	return nil, errors.New("not available in tests")
}

func newHandlerFixture(t *testing.T) (*job.Orchestrator, *store.Ledger) {
	t.Helper()
	dir := t.TempDir()
	ledger, err := store.OpenLedger(filepath.Join(dir, "current-downloads.json"))
	require.NoError(t, err)
	catalog, err := store.OpenCatalog(filepath.Join(dir, "videos.json"))
	require.NoError(t, err)
	prefs, err := store.OpenPreferences(filepath.Join(dir, "preferences.json"))
	require.NoError(t, err)

	orch := job.New(context.Background(), job.Params{
		Ledger:      ledger,
		Catalog:     catalog,
		Preferences: prefs,
		Transcoder:  noopTranscoder{},
		MediaDir:    filepath.Join(dir, "media"),
	})
	return orch, ledger
}

func TestDownloadsIndexRendersStatuses(t *testing.T) {
	orch, ledger := newHandlerFixture(t)

	id := uuid.NewString()
	require.NoError(t, ledger.Put(id, store.LedgerEntry{
		Video:     store.StageStatus{State: store.StateDownloading, Origin: store.OriginFull, Percent: 45},
		Thumbnail: &store.StageStatus{State: store.StateWaiting},
	}))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/downloads", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, HandleDownloadsIndex(orch)(e.NewContext(req, rec)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"45.00%"`)
	assert.Contains(t, rec.Body.String(), `"waiting for video"`)
	assert.Contains(t, rec.Body.String(), id)
}

func TestResumeUnknownIDIsNotFound(t *testing.T) {
	orch, _ := newHandlerFixture(t)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/downloads/x/resume", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/downloads/:id/resume")
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())

	err := HandleResume(orch)(c)
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusNotFound, he.Code)
}

func TestCancelNegativeAck(t *testing.T) {
	orch, ledger := newHandlerFixture(t)

	// Terminal stage: cancellation must be refused, not errored.
	id := uuid.NewString()
	require.NoError(t, ledger.Put(id, store.LedgerEntry{
		Video: store.StageStatus{State: store.StateCompleted, Origin: store.OriginFull},
	}))

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/cancel/download",
		strings.NewReader(`{"id":"`+id+`"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	require.NoError(t, HandleCancelDownload(orch)(e.NewContext(req, rec)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "false", strings.TrimSpace(rec.Body.String()))
}

func TestCancelPositiveAck(t *testing.T) {
	orch, ledger := newHandlerFixture(t)

	id := uuid.NewString()
	require.NoError(t, ledger.Put(id, store.LedgerEntry{
		Video: store.StageStatus{State: store.StateDownloading, Origin: store.OriginFull, Percent: 10},
	}))

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/cancel/download",
		strings.NewReader(`{"id":"`+id+`"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	require.NoError(t, HandleCancelDownload(orch)(e.NewContext(req, rec)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", strings.TrimSpace(rec.Body.String()))
}

func TestDeleteUnknownVideoIsNotFound(t *testing.T) {
	orch, _ := newHandlerFixture(t)

	e := echo.New()
	req := httptest.NewRequest(http.MethodDelete, "/api/video/x", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/video/:id")
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())

	err := HandleDelete(orch)(c)
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusNotFound, he.Code)
}
