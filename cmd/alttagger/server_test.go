package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chriskillpack/alttagger"
	"github.com/chriskillpack/alttagger/describer"
	"github.com/chriskillpack/alttagger/internal/processing"
	"github.com/chriskillpack/alttagger/internal/quota"
	"github.com/chriskillpack/alttagger/internal/ratelimit"
	"github.com/chriskillpack/alttagger/internal/runstate"
	"github.com/chriskillpack/alttagger/internal/session"
)

type stubDescriber struct{}

func (stubDescriber) Name() string                    { return "ollama" }
func (stubDescriber) IsHealthy(context.Context) error { return nil }
func (stubDescriber) DescribeImage(ctx context.Context, req describer.Request) (string, error) {
	return "Photo " + filepath.Base(req.Image.Path), nil
}

func newTestServer(t *testing.T, images int, stepQuota int) (*Server, *alttagger.DB) {
	t.Helper()

	db, err := alttagger.NewDB(t.Context(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(db.Close)

	root := t.TempDir()
	var paths []alttagger.ImagePath
	for i := range images {
		p := filepath.Join(root, string(rune('a'+i))+".jpg")
		require.NoError(t, writeTestImage(p))
		paths = append(paths, alttagger.ImagePath{Path: p, Modtime: time.Now(), MIMEType: "image/jpeg"})
	}
	_, err = db.InsertImagePaths(t.Context(), paths, 100)
	require.NoError(t, err)

	lib, err := db.Library(root)
	require.NoError(t, err)

	noSleep := func(context.Context, time.Duration) error { return nil }
	proc := processing.New(lib, stubDescriber{}, session.New(runstate.NewMemory(), "", 0), ratelimit.Default(),
		processing.WithSleep(noSleep))

	cfg := processing.Config{Provider: "ollama", Model: "llava", BatchSize: 2, MaxRetries: 0}
	return NewServer(proc, db, cfg, quota.New(stepQuota), ":0"), db
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServeStep(t *testing.T) {
	srv, _ := newTestServer(t, 3, 0)
	h := srv.serveHandler()

	rec := do(t, h, http.MethodPost, "/api/step", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var res processing.BatchResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, 2, res.Attempted)
	assert.Equal(t, 3, res.SessionTotal)
	assert.InDelta(t, 66.7, res.ProgressPercent, 0.001)

	rec = do(t, h, http.MethodGet, "/api/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var r session.Resumable
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&r))
	assert.Equal(t, session.Resumable{HasSession: true, SessionTotal: 3, Remaining: 1, Processed: 2}, r)

	batchSize := 5
	rec = do(t, h, http.MethodPost, "/api/step", map[string]any{"batch_size": batchSize})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.True(t, res.Completed)
	assert.Equal(t, float64(100), res.ProgressPercent)

	rec = do(t, h, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st alttagger.Stats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	assert.Equal(t, alttagger.Stats{Total: 3, WithAlt: 3, Percentage: 100}, st)
}

func TestServeStepErrors(t *testing.T) {
	srv, _ := newTestServer(t, 3, 1)
	h := srv.serveHandler()

	rec := do(t, h, http.MethodPost, "/api/step", map[string]any{"batch_size": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "invalid batch size")

	// The rejected request above used the caller's only step
	rec = do(t, h, http.MethodPost, "/api/step", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/step", bytes.NewBufferString("{"))
	req.RemoteAddr = "192.0.2.10:1234"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeFreshSessionAndPreview(t *testing.T) {
	srv, db := newTestServer(t, 3, 0)
	h := srv.serveHandler()

	rec := do(t, h, http.MethodPost, "/api/preview", map[string]any{"count": 2})
	require.Equal(t, http.StatusOK, rec.Code)
	var results []processing.PreviewResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&results))
	require.Len(t, results, 2)
	assert.Equal(t, "Photo a.jpg", results[0].AltText)

	s, err := db.Stats(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 0, s.WithAlt, "preview does not save")

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/step", nil).Code)

	rec = do(t, h, http.MethodPost, "/api/session/fresh", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/session", nil)
	var r session.Resumable
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&r))
	assert.False(t, r.HasSession)
	assert.Equal(t, 1, r.Remaining)

	rec = do(t, h, http.MethodGet, "/healthcheck", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}
