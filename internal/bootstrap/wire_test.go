package bootstrap

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/moodchat/client/internal/config"
	"github.com/zhouzirui/moodchat/client/internal/model/chat"
	"github.com/zhouzirui/moodchat/client/internal/service/recording"
)

type deniedPermission struct{}

func (deniedPermission) MicrophoneGranted(context.Context) (bool, error) { return false, nil }

type noRecorder struct{}

func (noRecorder) Start(context.Context, string, recording.Format) (recording.Session, error) {
	panic("recorder should not start without permission")
}

func fakeRecorder(config.AudioConfig) (recording.Permission, recording.Recorder) {
	return deniedPermission{}, noRecorder{}
}

type grantedPermission struct{}

func (grantedPermission) MicrophoneGranted(context.Context) (bool, error) { return true, nil }

type heldSession struct {
	mu       sync.Mutex
	path     string
	stopped  bool
	disposed bool
}

func (s *heldSession) Stop() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return s.path, os.WriteFile(s.path, []byte("aac"), 0o600)
}

func (s *heldSession) Dispose() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed = true
	return nil
}

type heldRecorder struct {
	session *heldSession
}

func (r *heldRecorder) Start(_ context.Context, path string, _ recording.Format) (recording.Session, error) {
	r.session.path = path
	return r.session, nil
}

func testConfig(t *testing.T, backendURL string, historyDB string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Server: config.ServerConfig{Addr: ":0"},
		Backend: config.BackendConfig{
			BaseURL:         backendURL,
			TextTimeout:     time.Second,
			MediaTimeout:    time.Second,
			VideoTimeout:    time.Second,
			RealtimeTimeout: time.Second,
			FrameTransport:  config.FrameTransportMultipart,
		},
		Storage: config.StorageConfig{DataDir: dir, HistoryDB: historyDB},
		Audio:   config.AudioConfig{SampleRate: 16000, Bitrate: "32k"},
	}
}

func TestBuildServesTextTurnEndToEnd(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sentiment/analyze/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"prediction": 0.97, "sentiment": "Positive"}`)
	}))
	t.Cleanup(backend.Close)

	historyDB := filepath.Join(t.TempDir(), "history.db")
	app, err := Build(testConfig(t, backend.URL, historyDB), fakeRecorder)
	require.NoError(t, err)
	require.NotNil(t, app.Archive)

	req := httptest.NewRequest(http.MethodPost, "/api/messages/text", strings.NewReader(`{"text":"I love this"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	app.Router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusAccepted, resp.Code)

	app.chatHandler.Wait()

	snapshot := app.Timeline.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, chat.KindText, snapshot[1].Kind)
	assert.Equal(t, "Sentiment: Positive\nConfidence: 97.00%", snapshot[1].Text)

	require.Eventually(t, func() bool {
		entries, err := app.Archive.List(context.Background(), 10, 0)
		return err == nil && len(entries) == 2
	}, 2*time.Second, 10*time.Millisecond)

	app.Close()
}

func TestBuildWithoutArchive(t *testing.T) {
	app, err := Build(testConfig(t, "http://127.0.0.1:1", ""), fakeRecorder)
	require.NoError(t, err)
	defer app.Close()

	assert.Nil(t, app.Archive)

	resp := httptest.NewRecorder()
	app.Router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestBuildWiresRecordingPermission(t *testing.T) {
	app, err := Build(testConfig(t, "http://127.0.0.1:1", ""), fakeRecorder)
	require.NoError(t, err)
	defer app.Close()

	resp := httptest.NewRecorder()
	app.Router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/recording/begin", nil))
	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.Equal(t, recording.StateIdle, app.Recording.Status().State)
}

func TestCloseDiscardsActiveRecording(t *testing.T) {
	session := &heldSession{}
	recorder := func(config.AudioConfig) (recording.Permission, recording.Recorder) {
		return grantedPermission{}, &heldRecorder{session: session}
	}
	app, err := Build(testConfig(t, "http://127.0.0.1:1", ""), recorder)
	require.NoError(t, err)

	resp := httptest.NewRecorder()
	app.Router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/recording/begin", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, recording.StateRecording, app.Recording.Status().State)

	app.Close()

	session.mu.Lock()
	defer session.mu.Unlock()
	assert.True(t, session.stopped)
	assert.True(t, session.disposed)
	assert.Equal(t, recording.StateIdle, app.Recording.Status().State)
	assert.Empty(t, app.Timeline.Snapshot())
	_, statErr := os.Stat(session.path)
	assert.True(t, os.IsNotExist(statErr))
}
