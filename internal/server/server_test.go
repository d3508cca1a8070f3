package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/yt-converter/internal/download"
	"github.com/ytget/yt-converter/internal/metrics"
	"github.com/ytget/yt-converter/internal/model"
	"github.com/ytget/yt-converter/internal/store"
)

type fakeConverter struct {
	conv  download.Conversion
	err   error
	calls atomic.Int32
	panic bool
}

func (f *fakeConverter) Submit(ctx context.Context, rawURL, rawFormat string) (download.Conversion, error) {
	f.calls.Add(1)
	if f.panic {
		panic("boom")
	}
	return f.conv, f.err
}

func (f *fakeConverter) ActiveJobs() int { return 1 }

type fakePlaylists struct {
	pl  *model.Playlist
	err error
}

func (f fakePlaylists) List(ctx context.Context, rawURL string) (*model.Playlist, error) {
	return f.pl, f.err
}

type countingSweeper struct {
	n atomic.Int32
}

func (c *countingSweeper) TrySweep(ctx context.Context) (int, bool) {
	c.n.Add(1)
	return 0, true
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, opts Options, deps Deps) http.Handler {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = quietLogger()
	}
	if deps.Resolver == nil {
		deps.Resolver = download.NewGateway(store.NewMemoryStore(), nil, quietLogger())
	}
	if deps.Converter == nil {
		deps.Converter = &fakeConverter{}
	}
	return New(opts, deps).Handler()
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestConvert_Success(t *testing.T) {
	conv := &fakeConverter{conv: download.Conversion{Token: "tok", Title: "Example Song", Format: "mp3"}}
	h := newTestServer(t, Options{}, Deps{Converter: conv})

	rec := postJSON(t, h, "/api/convert", `{"url":"https://youtu.be/x","format":"mp3"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body convertResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "tok", body.DownloadToken)
	assert.Equal(t, "Example Song", body.Title)
	assert.Equal(t, "mp3", body.Format)
}

func TestConvert_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"invalid request", model.NewError(model.KindInvalidRequest, "op", "Format must be mp3 or mp4", nil), http.StatusBadRequest, "Format must be mp3 or mp4"},
		{"no stream", model.NewError(model.KindNoStreamAvailable, "op", "No suitable stream", nil), http.StatusBadRequest, "No suitable stream"},
		{"extraction", model.NewError(model.KindExtractionFailed, "op", "Failed to download media", errors.New("/secret/path")), http.StatusInternalServerError, "Conversion failed: Failed to download media"},
		{"extraction detail", model.NewError(model.KindExtractionFailed, "op", "Failed to download media: ERROR: Video unavailable", errors.New("/secret/path")), http.StatusInternalServerError, "Conversion failed: Failed to download media: ERROR: Video unavailable"},
		{"unresolvable", model.NewError(model.KindSourceUnresolvable, "op", "Could not retrieve video information", nil), http.StatusInternalServerError, "Conversion failed: Could not retrieve video information"},
		{"untyped", errors.New("raw"), http.StatusInternalServerError, "Conversion failed: Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, Options{}, Deps{Converter: &fakeConverter{err: tt.err}})
			rec := postJSON(t, h, "/api/convert", `{"url":"https://youtu.be/x","format":"mp3"}`)
			assert.Equal(t, tt.status, rec.Code)
			msg := decodeError(t, rec)
			assert.Equal(t, tt.msg, msg)
			assert.NotContains(t, msg, "/secret/path")
		})
	}
}

func TestConvert_BadBody(t *testing.T) {
	conv := &fakeConverter{}
	h := newTestServer(t, Options{}, Deps{Converter: conv})

	for _, body := range []string{"", "not json", `["x"]`} {
		rec := postJSON(t, h, "/api/convert", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Equal(t, int32(0), conv.calls.Load())
}

func TestConvert_MethodNotAllowed(t *testing.T) {
	h := newTestServer(t, Options{}, Deps{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/convert", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestDownload(t *testing.T) {
	st := store.NewMemoryStore()
	dir := filepath.Join(t.TempDir(), "job1")
	require.NoError(t, os.Mkdir(dir, 0o755))
	path := filepath.Join(dir, "a.mp3")
	require.NoError(t, os.WriteFile(path, []byte("ID3-audio"), 0o644))
	require.NoError(t, st.Insert(context.Background(), model.ArtifactRecord{
		Token: "tok", FilePath: path, DisplayName: "Example Song.mp3",
		CreatedAt: time.Now(), Format: model.FormatAudio, JobID: "job1",
	}))
	h := newTestServer(t, Options{}, Deps{Resolver: download.NewGateway(st, nil, quietLogger())})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/download/tok", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ID3-audio", rec.Body.String())
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))

	disposition, params, err := mime.ParseMediaType(rec.Header().Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "attachment", disposition)
	assert.Equal(t, "Example Song.mp3", params["filename"])

	// unknown token
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/download/nope", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid or expired download token", decodeError(t, rec))

	// missing file
	require.NoError(t, os.Remove(path))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/download/tok", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "File not found", decodeError(t, rec))
}

func TestPlaylist(t *testing.T) {
	pl := model.NewPlaylist("PL1", "https://www.youtube.com/playlist?list=PL1")
	pl.AddEntry(model.PlaylistEntry{ID: "v1", Title: "One", URL: "https://www.youtube.com/watch?v=v1"})
	h := newTestServer(t, Options{}, Deps{Playlists: fakePlaylists{pl: pl}})

	rec := postJSON(t, h, "/api/playlist", `{"url":"https://www.youtube.com/playlist?list=PL1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "PL1", body["playlist_id"])

	rec = postJSON(t, h, "/api/playlist", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h = newTestServer(t, Options{}, Deps{Playlists: fakePlaylists{
		err: model.NewError(model.KindInvalidRequest, "playlist", "URL does not reference a playlist", nil),
	}})
	rec = postJSON(t, h, "/api/playlist", `{"url":"https://youtu.be/x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	st := store.NewMemoryStore()
	require.NoError(t, st.Insert(context.Background(), model.ArtifactRecord{Token: "a"}))
	h := newTestServer(t, Options{}, Deps{Artifacts: st})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, healthResponse{Status: "ok", ActiveJobs: 1, Artifacts: 1}, body)
}

func TestIndex(t *testing.T) {
	h := newTestServer(t, Options{}, Deps{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/convert")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nothing-here", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORS(t *testing.T) {
	h := newTestServer(t, Options{CORSOrigin: "*"}, Deps{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/convert", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = postJSON(t, h, "/api/convert", `{"url":"https://youtu.be/x","format":"mp3"}`)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	conv := &fakeConverter{conv: download.Conversion{Token: "t"}}
	h := newTestServer(t, Options{RateLimitRPS: 0.001, RateLimitBurst: 2}, Deps{Converter: conv})

	codes := make([]int, 3)
	for i := range codes {
		codes[i] = postJSON(t, h, "/api/convert", `{"url":"https://youtu.be/x","format":"mp3"}`).Code
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, int32(2), conv.calls.Load())

	// downloads are not limited
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/download/none", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSweepOnRequest(t *testing.T) {
	sw := &countingSweeper{}
	h := newTestServer(t, Options{SweepOnRequest: true}, Deps{Sweeper: sw})
	for range 3 {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	}
	assert.Equal(t, int32(3), sw.n.Load())

	off := &countingSweeper{}
	h = newTestServer(t, Options{SweepOnRequest: false}, Deps{Sweeper: off})
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, int32(0), off.n.Load())
}

func TestPanicRecovery(t *testing.T) {
	h := newTestServer(t, Options{}, Deps{Converter: &fakeConverter{panic: true}})

	rec := postJSON(t, h, "/api/convert", `{"url":"https://youtu.be/x","format":"mp3"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	// the server keeps serving
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	prom := metrics.NewProm()
	h := newTestServer(t, Options{MetricsPath: "/metrics"}, Deps{Metrics: prom, MetricsHandler: prom.Handler()})

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="GET /healthz"`)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusFor(model.NewError(model.KindUnknownToken, "", "", nil)))
	assert.Equal(t, http.StatusNotFound, StatusFor(model.NewError(model.KindArtifactMissing, "", "", nil)))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(model.NewError(model.KindStorageIO, "", "", nil)))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(bytes.ErrTooLarge))
}
