package video_api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thirdcoast.systems/vodstash/internal/store"
)

func serveThumbnail(t *testing.T, catalog *store.Catalog, id, index string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/thumbnail/"+id+"/"+index, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/thumbnail/:id/:index")
	c.SetParamNames("id", "index")
	c.SetParamValues(id, index)
	return rec, HandleThumbnail(catalog)(c)
}

func TestThumbnailServed(t *testing.T) {
	dir := t.TempDir()
	catalog, err := store.OpenCatalog(filepath.Join(dir, "videos.json"))
	require.NoError(t, err)

	thumb := filepath.Join(dir, "v-1.jpg")
	require.NoError(t, os.WriteFile(thumb, []byte("jpeg-bytes"), 0o644))

	id := uuid.NewString()
	require.NoError(t, catalog.Put(id, store.VideoRecord{
		Video:     store.VideoVariant{State: store.StateCompleted},
		Thumbnail: &store.ThumbnailSet{Paths: map[int]string{1: thumb}, State: store.StateCompleted},
	}))

	rec, err := serveThumbnail(t, catalog, id, "1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jpeg-bytes", rec.Body.String())
	assert.Equal(t, "image/jpeg", rec.Header().Get(echo.HeaderContentType))

	// Unknown index falls back to the index page.
	rec, err = serveThumbnail(t, catalog, id, "2")
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, rec.Code)

	// Unknown video likewise.
	rec, err = serveThumbnail(t, catalog, uuid.NewString(), "1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestThumbnailUnreadableFileIsBadRequest(t *testing.T) {
	dir := t.TempDir()
	catalog, err := store.OpenCatalog(filepath.Join(dir, "videos.json"))
	require.NoError(t, err)

	id := uuid.NewString()
	require.NoError(t, catalog.Put(id, store.VideoRecord{
		Video:     store.VideoVariant{State: store.StateCompleted},
		Thumbnail: &store.ThumbnailSet{Paths: map[int]string{1: filepath.Join(dir, "gone.jpg")}, State: store.StateCompleted},
	}))

	_, err = serveThumbnail(t, catalog, id, "1")
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusBadRequest, he.Code)
}

func TestThumbnailIndexValidation(t *testing.T) {
	catalog, err := store.OpenCatalog(filepath.Join(t.TempDir(), "videos.json"))
	require.NoError(t, err)

	for _, index := range []string{"0", "-1", "abc"} {
		_, err := serveThumbnail(t, catalog, uuid.NewString(), index)
		var he *echo.HTTPError
		require.ErrorAs(t, err, &he, "index %q", index)
		assert.Equal(t, http.StatusBadRequest, he.Code)
	}
}
