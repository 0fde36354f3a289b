package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/carbuzz/internal/crawler"
	"github.com/JakeFAU/carbuzz/internal/pipeline"
	"github.com/JakeFAU/carbuzz/internal/storage/memory"
)

var kst = time.FixedZone("KST", 9*60*60)

func TestServer_StartRun_Succeeds(t *testing.T) {
	t.Parallel()

	runner := &mockRunner{}
	date := time.Date(2024, 5, 2, 0, 0, 0, 0, kst)
	opts := pipeline.RunOptions{Platform: "clien", Force: true}
	runner.On("Platforms", "clien").Return([]string{"clien"}, nil)
	runner.On("Run", mock.Anything, sameDay(date), opts).Return(pipeline.RunStats{Date: "2024-05-02"}, nil)

	server, runs := newTestServer(t, runner, Config{})
	rec := do(server, http.MethodPost, "/v1/runs", `{"date":"2024-05-02","platform":"clien","force":true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), "run-1")

	server.Wait()
	runner.AssertExpectations(t)

	run, err := runs.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, crawler.RunStatusSucceeded, run.Status)
	assert.Equal(t, "clien", run.Platform)
	assert.True(t, run.Force)

	rec = do(server, http.MethodGet, "/v1/runs/run-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "succeeded", body["status"])
	assert.Equal(t, "2024-05-02", body["date"])
	stats, ok := body["stats"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "2024-05-02", stats["date"])
}

func TestServer_StartRun_DefaultsToToday(t *testing.T) {
	t.Parallel()

	runner := &mockRunner{}
	runner.On("Platforms", "").Return([]string{"bobae", "clien"}, nil)
	// 15:00 UTC is already the next day in Seoul.
	today := time.Date(2024, 5, 3, 0, 0, 0, 0, kst)
	runner.On("Run", mock.Anything, sameDay(today), pipeline.RunOptions{}).Return(pipeline.RunStats{}, nil)

	server, _ := newTestServer(t, runner, Config{})
	rec := do(server, http.MethodPost, "/v1/runs", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), "2024-05-03")

	server.Wait()
	runner.AssertExpectations(t)
}

func TestServer_StartRun_RecordsFailure(t *testing.T) {
	t.Parallel()

	runner := &mockRunner{}
	runner.On("Platforms", "").Return([]string{"clien"}, nil)
	runner.On("Run", mock.Anything, mock.Anything, mock.Anything).
		Return(pipeline.RunStats{Date: "2024-05-02"}, fmt.Errorf("merge 4 parts: %w", crawler.ErrNoData))

	server, runs := newTestServer(t, runner, Config{})
	rec := do(server, http.MethodPost, "/v1/runs", `{"date":"2024-05-02"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	server.Wait()

	run, err := runs.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, crawler.RunStatusFailed, run.Status)
	assert.Contains(t, run.ErrorText, "no data")
	assert.NotNil(t, run.Finished)
}

func TestServer_StartRun_BadRequests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"invalid json", "{invalid", "invalid JSON"},
		{"invalid date", `{"date":"05/02/2024"}`, "parse run date"},
		{"unknown platform", `{"platform":"reddit"}`, "not enabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			runner := &mockRunner{}
			runner.On("Platforms", "").Return([]string{"clien"}, nil).Maybe()
			runner.On("Platforms", "reddit").Return(nil, errors.New(`platform "reddit" is not enabled`)).Maybe()

			server, _ := newTestServer(t, runner, Config{})
			rec := do(server, http.MethodPost, "/v1/runs", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
			runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestServer_StartRun_ConflictWhileRunning(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	runner := &mockRunner{}
	runner.On("Platforms", "").Return([]string{"clien"}, nil)
	runner.On("Run", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return(pipeline.RunStats{}, nil).Once()

	server, runs := newTestServer(t, runner, Config{})
	rec := do(server, http.MethodPost, "/v1/runs", "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(server, http.MethodPost, "/v1/runs", "")
	require.Equal(t, http.StatusConflict, rec.Code)

	close(release)
	server.Wait()

	_, err := runs.GetRun(context.Background(), "run-2")
	require.ErrorIs(t, err, crawler.ErrRunNotFound)
}

func TestServer_GetRun_NotFound(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t, &mockRunner{}, Config{})
	rec := do(server, http.MethodGet, "/v1/runs/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Probes(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t, &mockRunner{}, Config{})
	require.Equal(t, http.StatusOK, do(server, http.MethodGet, "/healthz", "").Code)
	require.Equal(t, http.StatusOK, do(server, http.MethodGet, "/readyz", "").Code)

	rec := do(server, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServer_ReadyzAfterShutdown(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	server := NewServer(ctx, memory.NewRunStore(nil), &mockRunner{}, &fakeIDGen{}, &fakeClock{}, Config{}, zap.NewNop())

	require.Equal(t, http.StatusServiceUnavailable, do(server, http.MethodGet, "/readyz", "").Code)
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t, &mockRunner{}, Config{APIKey: "secret"})

	rec := do(server, http.MethodGet, "/v1/runs/any", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/any", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)

	require.Equal(t, http.StatusOK, do(server, http.MethodGet, "/healthz", "").Code)
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t, &mockRunner{}, Config{})
	require.NotEmpty(t, do(server, http.MethodGet, "/healthz", "").Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err := rw.Hijack()
	require.EqualError(t, err, "hijacker not supported")

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	require.NoError(t, err)
	require.NotNil(t, buf)
	require.NoError(t, conn.Close())
	require.NoError(t, h.CloseClient())
}

// --- helpers/fakes ---

func sameDay(want time.Time) any {
	return mock.MatchedBy(func(got time.Time) bool { return got.Equal(want) })
}

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, date time.Time, opts pipeline.RunOptions) (pipeline.RunStats, error) {
	args := m.Called(ctx, date, opts)
	return args.Get(0).(pipeline.RunStats), args.Error(1)
}

func (m *mockRunner) Platforms(only string) ([]string, error) {
	args := m.Called(only)
	names, _ := args.Get(0).([]string)
	return names, args.Error(1)
}

type fakeIDGen struct {
	mu   sync.Mutex
	next int
}

func (f *fakeIDGen) NewID() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	return fmt.Sprintf("run-%d", f.next), nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}

func newTestServer(t *testing.T, runner Runner, cfg Config) (*Server, *memory.RunStore) {
	t.Helper()
	cfg.Location = kst
	clock := &fakeClock{now: time.Date(2024, 5, 2, 15, 0, 0, 0, time.UTC)}
	runs := memory.NewRunStore(clock)
	return NewServer(context.Background(), runs, runner, &fakeIDGen{}, clock, cfg, zap.NewNop()), runs
}

func do(server *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	}
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}
