package server_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/born-ml/stylize/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string, modified time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	require.NoError(t, os.Chtimes(path, modified, modified))
}

func gallery(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	writeFile(t, dir, "output.jpg", "jpeg bytes", base)
	writeFile(t, dir, "snap-run-5.png", "png bytes", base.Add(time.Minute))
	writeFile(t, dir, "notes.txt", "not an image", base)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0o700))
	return dir
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestImagesNewestFirst(t *testing.T) {
	images, err := server.Images(gallery(t))
	require.NoError(t, err)

	require.Len(t, images, 2)
	assert.Equal(t, "snap-run-5.png", images[0].Name)
	assert.Equal(t, "output.jpg", images[1].Name)
	assert.Equal(t, int64(len("jpeg bytes")), images[1].Size)

	_, err = server.Images(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestIndexRendersGallery(t *testing.T) {
	h := server.New(gallery(t), nil)

	rec := get(t, h, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	body := rec.Body.String()
	assert.Contains(t, body, `src="/images/output.jpg"`)
	assert.Contains(t, body, `src="/images/snap-run-5.png"`)
	assert.NotContains(t, body, "notes.txt")

	empty := server.New(t.TempDir(), nil)
	assert.Contains(t, get(t, empty, "/").Body.String(), "No images yet.")
}

func TestListJSON(t *testing.T) {
	h := server.New(gallery(t), nil)

	rec := get(t, h, "/api/images")
	require.Equal(t, http.StatusOK, rec.Code)

	var images []server.Image
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &images))
	require.Len(t, images, 2)
	assert.Equal(t, "snap-run-5.png", images[0].Name)
}

func TestServeImage(t *testing.T) {
	h := server.New(gallery(t), nil)

	rec := get(t, h, "/images/output.jpg")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jpeg bytes", rec.Body.String())

	for _, path := range []string{
		"/images/notes.txt",
		"/images/missing.png",
		"/images/sub.png",
		"/images/",
		"/nothing",
	} {
		assert.Equal(t, http.StatusNotFound, get(t, h, path).Code, path)
	}
}

func TestRequestsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	h := server.New(gallery(t), logger)

	get(t, h, "/images/missing.png")
	assert.Contains(t, buf.String(), "path=/images/missing.png")
	assert.Contains(t, buf.String(), "status=404")
}

func TestMissingDirectoryFails(t *testing.T) {
	h := server.New(filepath.Join(t.TempDir(), "missing"), nil)
	assert.Equal(t, http.StatusInternalServerError, get(t, h, "/").Code)
	assert.Equal(t, http.StatusInternalServerError, get(t, h, "/api/images").Code)
}
