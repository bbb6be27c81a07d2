package recording

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	recordingService "github.com/zhouzirui/moodchat/client/internal/service/recording"
)

type grantAll struct{ granted bool }

func (g grantAll) MicrophoneGranted(context.Context) (bool, error) { return g.granted, nil }

type fileRecorder struct{}

type fileSession struct{ path string }

func (fileRecorder) Start(_ context.Context, path string, _ recordingService.Format) (recordingService.Session, error) {
	return &fileSession{path: path}, nil
}

func (s *fileSession) Stop() (string, error) {
	return s.path, os.WriteFile(s.path, []byte("aac"), 0o600)
}

func (s *fileSession) Dispose() error { return nil }

type idleTicker struct{ ch chan time.Time }

func (t idleTicker) C() <-chan time.Time { return t.ch }
func (t idleTicker) Stop()               {}

type uploads struct {
	mu    sync.Mutex
	paths []string
}

func (u *uploads) UploadRecording(_ context.Context, path string) {
	u.mu.Lock()
	u.paths = append(u.paths, path)
	u.mu.Unlock()
}

func setupRouter(t *testing.T, granted bool) (*chi.Mux, *recordingService.Controller, *uploads) {
	t.Helper()
	up := &uploads{}
	controller := recordingService.NewController(recordingService.Config{
		Gate:       recordingService.NewGate(),
		Permission: grantAll{granted: granted},
		Recorder:   fileRecorder{},
		Uploader:   up,
		Tickers:    func(time.Duration) recordingService.Ticker { return idleTicker{ch: make(chan time.Time)} },
		TempDir:    t.TempDir(),
	})

	r := chi.NewRouter()
	New(controller).RegisterRoutes(r)
	return r, controller, up
}

func post(r http.Handler, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(http.MethodPost, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestHoldAndRelease(t *testing.T) {
	r, controller, up := setupRouter(t, true)

	if resp := post(r, "/recording/begin", nil); resp.Code != http.StatusOK {
		t.Fatalf("begin: expected 200, got %d", resp.Code)
	}
	if resp := post(r, "/recording/begin", nil); resp.Code != http.StatusConflict {
		t.Fatalf("second begin: expected 409, got %d", resp.Code)
	}

	resp := post(r, "/recording/end", map[string]bool{"send": true})
	if resp.Code != http.StatusOK {
		t.Fatalf("end: expected 200, got %d", resp.Code)
	}
	if !bytes.Contains(resp.Body.Bytes(), []byte(`"outcome":"uploading"`)) {
		t.Fatalf("unexpected body: %s", resp.Body.String())
	}

	controller.Wait()
	if len(up.paths) != 1 {
		t.Fatalf("expected one upload, got %d", len(up.paths))
	}
}

func TestDragToCancel(t *testing.T) {
	r, controller, up := setupRouter(t, true)
	post(r, "/recording/begin", nil)

	resp := post(r, "/recording/drag", map[string]float64{"deltaX": -200, "width": 300})
	if !bytes.Contains(resp.Body.Bytes(), []byte(`"cancelled":true`)) {
		t.Fatalf("expected cancel intent, got %s", resp.Body.String())
	}

	resp = post(r, "/recording/end", nil)
	if !bytes.Contains(resp.Body.Bytes(), []byte(`"outcome":"discarded"`)) {
		t.Fatalf("expected discard, got %s", resp.Body.String())
	}
	controller.Wait()
	if len(up.paths) != 0 {
		t.Fatalf("cancelled recording must not upload")
	}
}

func TestBeginWithoutPermission(t *testing.T) {
	r, _, _ := setupRouter(t, false)

	if resp := post(r, "/recording/begin", nil); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestEndWithoutRecording(t *testing.T) {
	r, _, _ := setupRouter(t, true)

	if resp := post(r, "/recording/end", nil); resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
}
