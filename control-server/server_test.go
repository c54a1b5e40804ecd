package controlserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeti47/screenrec/capture"
	"github.com/yeti47/screenrec/ccc/db"
	"github.com/yeti47/screenrec/config"
	filemanagement "github.com/yeti47/screenrec/file-management"
	"github.com/yeti47/screenrec/recordings"
	"github.com/yeti47/screenrec/trim"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []string
	state capture.State
}

func (r *fakeRecorder) record(call string, next capture.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	r.state = next
}

func (r *fakeRecorder) Status() capture.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return capture.Status{State: r.state}
}

func (r *fakeRecorder) Start()  { r.record("start", capture.StateAwaitingToken) }
func (r *fakeRecorder) Stop()   { r.record("stop", capture.StateIdle) }
func (r *fakeRecorder) Pause()  { r.record("pause", capture.StatePaused) }
func (r *fakeRecorder) Resume() { r.record("resume", capture.StateRecording) }
func (r *fakeRecorder) Cancel() { r.record("cancel", capture.StateIdle) }

func (r *fakeRecorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type harness struct {
	recorder *fakeRecorder
	repo     *recordings.SQLiteRepository
	trims    trim.Queue
	handler  http.Handler
	dir      string
}

func newHarness(t *testing.T, cfg config.Config) *harness {
	t.Helper()

	database, err := db.NewInMemoryDB()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	repo, err := recordings.NewSQLiteRepository(database)
	require.NoError(t, err)

	files := filemanagement.NewLocalFileTracker(nil)
	// never started, so jobs stay queued
	trims := trim.NewQueue(nil, nil, files, 1, 1, time.Second)

	h := &harness{
		recorder: &fakeRecorder{},
		repo:     repo,
		trims:    trims,
		dir:      t.TempDir(),
	}
	h.handler = NewServer(nil, cfg, Dependencies{
		Recorder:   h.recorder,
		Repository: repo,
		Deleter:    recordings.NewDeleter(nil, repo, files),
		Trims:      trims,
	}).Handler()
	return h
}

func (h *harness) addRecording(t *testing.T, id string, createdAt time.Time) *recordings.Recording {
	t.Helper()

	path := filepath.Join(h.dir, id+".mp4")
	require.NoError(t, os.WriteFile(path, []byte("video-"+id), 0644))

	rec := &recordings.Recording{
		ID:        id,
		Path:      path,
		Title:     id,
		CreatedAt: createdAt,
		Duration:  3 * time.Second,
		SizeBytes: int64(len("video-" + id)),
		Width:     1280,
		Height:    720,
		MimeType:  "video/mp4",
	}
	require.NoError(t, h.repo.Add(context.Background(), rec))
	return rec
}

func (h *harness) do(method, target, body string, header ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	h := newHarness(t, config.Config{})

	w := h.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	body := decode[map[string]string](t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "screenrec", body["service"])
}

func TestRecordingCommands(t *testing.T) {
	h := newHarness(t, config.Config{})

	for _, cmd := range []string{"start", "pause", "resume", "stop", "cancel"} {
		w := h.do(http.MethodPost, "/api/recording/"+cmd, "")
		assert.Equal(t, http.StatusAccepted, w.Code, cmd)

		body := decode[map[string]any](t, w)
		assert.Equal(t, cmd, body["command"])
	}
	assert.Equal(t, []string{"start", "pause", "resume", "stop", "cancel"}, h.recorder.Calls())

	h.recorder.Start()
	w := h.do(http.MethodGet, "/api/recording", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "awaiting_token", decode[map[string]any](t, w)["state"])
}

func TestControlToken(t *testing.T) {
	h := newHarness(t, config.Config{ControlToken: "secret"})

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/recording", "").Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/recording", "", "Authorization", "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/recording", "", "Authorization", "Bearer wrong").Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/recording", "", "Authorization", "Bearer secret").Code)

	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/api/recording/start", "").Code)
	assert.Empty(t, h.recorder.Calls())
}

func TestListRecordings(t *testing.T) {
	h := newHarness(t, config.Config{})

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	h.addRecording(t, "a", base)
	h.addRecording(t, "b", base.Add(time.Hour))
	h.addRecording(t, "c", base.Add(2*time.Hour))

	type listResponse struct {
		Recordings []recordings.Recording `json:"recordings"`
		Total      int                    `json:"total"`
		Page       int                    `json:"page"`
		PageSize   int                    `json:"page_size"`
	}

	w := h.do(http.MethodGet, "/api/recordings?page=1&page_size=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[listResponse](t, w)
	assert.Equal(t, 3, body.Total)
	require.Len(t, body.Recordings, 2)
	assert.Equal(t, "c", body.Recordings[0].ID)
	assert.Equal(t, "b", body.Recordings[1].ID)

	w = h.do(http.MethodGet, "/api/recordings?page=2&page_size=2", "")
	body = decode[listResponse](t, w)
	require.Len(t, body.Recordings, 1)
	assert.Equal(t, "a", body.Recordings[0].ID)

	w = h.do(http.MethodGet, "/api/recordings?start_time="+base.Add(30*time.Minute).Format(time.RFC3339), "")
	body = decode[listResponse](t, w)
	assert.Equal(t, 2, body.Total)

	w = h.do(http.MethodGet, "/api/recordings?start_time=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListRecordingsEmpty(t *testing.T) {
	h := newHarness(t, config.Config{})

	w := h.do(http.MethodGet, "/api/recordings", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"recordings":[]`)
}

func TestGetRecordingAndVideo(t *testing.T) {
	h := newHarness(t, config.Config{})
	rec := h.addRecording(t, "a", time.Now().UTC())

	w := h.do(http.MethodGet, "/api/recordings/a", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, rec.Path, decode[recordings.Recording](t, w).Path)

	w = h.do(http.MethodGet, "/api/recordings/a/video", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "video-a", w.Body.String())
	assert.Equal(t, "video/mp4", w.Header().Get("Content-Type"))

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/recordings/missing", "").Code)

	require.NoError(t, os.Remove(rec.Path))
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/recordings/a/video", "").Code)
}

func TestDeleteRecording(t *testing.T) {
	h := newHarness(t, config.Config{})
	rec := h.addRecording(t, "a", time.Now().UTC())

	w := h.do(http.MethodDelete, "/api/recordings/a", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"a"}, decode[recordings.DeleteRecordingsResponse](t, w).Deleted)

	assert.NoFileExists(t, rec.Path)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/recordings/a", "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodDelete, "/api/recordings/a", "").Code)
}

func TestQueueTrim(t *testing.T) {
	h := newHarness(t, config.Config{})
	rec := h.addRecording(t, "a", time.Now().UTC())
	h.addRecording(t, "b", time.Now().UTC())

	w := h.do(http.MethodPost, "/api/recordings/a/trim", `{"start_ms": 0, "end_ms": 1000}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	job := decode[trim.Job](t, w)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, trim.JobQueued, job.State)
	assert.Equal(t, "a", job.RecordingID)
	assert.Equal(t, rec.Path, job.InputPath)
	assert.Equal(t, filepath.Join(h.dir, "a-edited.mp4"), job.OutputPath)

	w = h.do(http.MethodGet, "/api/trims/"+job.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, job.ID, decode[trim.Job](t, w).ID)

	// same output while the first job is pending
	w = h.do(http.MethodPost, "/api/recordings/a/trim", `{"start_ms": 0, "end_ms": 500}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	// the buffer holds a single job
	w = h.do(http.MethodPost, "/api/recordings/b/trim", `{"start_ms": 0, "end_ms": 500}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestQueueTrimRejectsBadRequests(t *testing.T) {
	h := newHarness(t, config.Config{})
	h.addRecording(t, "a", time.Now().UTC())

	tests := []struct {
		name   string
		target string
		body   string
		want   int
	}{
		{"missing end", "/api/recordings/a/trim", `{"start_ms": 0}`, http.StatusBadRequest},
		{"malformed", "/api/recordings/a/trim", `{"start_ms":`, http.StatusBadRequest},
		{"empty range", "/api/recordings/a/trim", `{"start_ms": 500, "end_ms": 500}`, http.StatusBadRequest},
		{"negative start", "/api/recordings/a/trim", `{"start_ms": -1, "end_ms": 500}`, http.StatusBadRequest},
		{"unknown recording", "/api/recordings/zzz/trim", `{"start_ms": 0, "end_ms": 500}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := h.do(http.MethodPost, tt.target, tt.body)
			assert.Equal(t, tt.want, w.Code)
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/trims/nope", "").Code)
}
