package history

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	historyStore "github.com/zhouzirui/moodchat/client/internal/storage/history"
)

type fakeArchive struct {
	limit, offset int
}

func (f *fakeArchive) List(_ context.Context, limit, offset int) ([]historyStore.Entry, error) {
	f.limit, f.offset = limit, offset
	return []historyStore.Entry{{MessageID: "m-1", Kind: "text", Text: "hello"}}, nil
}

func TestListPassesPagination(t *testing.T) {
	archive := &fakeArchive{}
	r := chi.NewRouter()
	New(archive).RegisterRoutes(r)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/history?limit=10&offset=20", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if archive.limit != 10 || archive.offset != 20 {
		t.Fatalf("unexpected pagination: %d/%d", archive.limit, archive.offset)
	}
}

func TestListRejectsBadQuery(t *testing.T) {
	r := chi.NewRouter()
	New(&fakeArchive{}).RegisterRoutes(r)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/history?limit=lots", nil))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestListDisabledArchive(t *testing.T) {
	r := chi.NewRouter()
	New(nil).RegisterRoutes(r)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/history", nil))

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}
