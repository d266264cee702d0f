package orchestrator

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hls-window/internal/window"

	"github.com/go-chi/chi/v5"
)

func newTestRouter(t *testing.T) *chi.Mux {
	t.Helper()
	svc, _, _ := newTestService(t, NewInMemoryStore(), window.Limits{})
	h := NewHandler(svc, testLogger())
	h.now = func() time.Time { return time.UnixMilli(testBase + 95000) }
	r := chi.NewRouter()
	h.Routes(r, nil)
	return r
}

func postChunk(t *testing.T, r http.Handler, playlist string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/playlists/"+playlist+"/chunks", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func do(r http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHandler_InsertChunk(t *testing.T) {
	r := newTestRouter(t)

	rec := postChunk(t, r, "s1", videoChunk("720p", 1))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var res InsertResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil || !res.Accepted {
		t.Errorf("unexpected body %s (err %v)", rec.Body.String(), err)
	}

	rec = postChunk(t, r, "s1", videoChunk("720p", 1))
	if rec.Code != http.StatusOK {
		t.Errorf("duplicate: expected 200, got %d", rec.Code)
	}
}

func TestHandler_InsertChunk_bad_request(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/playlists/s1/chunks", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}

	rec = postChunk(t, r, "s1", map[string]any{"flavor": "720p"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing path: expected 400, got %d", rec.Code)
	}
}

func TestHandler_InsertChunk_conflict_after_end(t *testing.T) {
	r := newTestRouter(t)

	if rec := postChunk(t, r, "s1", videoChunk("720p", 1)); rec.Code != http.StatusCreated {
		t.Fatalf("setup: expected 201, got %d", rec.Code)
	}
	if rec := do(r, http.MethodPost, "/playlists/s1/end"); rec.Code != http.StatusOK {
		t.Fatalf("end stream: expected 200, got %d", rec.Code)
	}

	if rec := postChunk(t, r, "s1", videoChunk("720p", 2)); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 after stream ended, got %d", rec.Code)
	}
}

func TestHandler_ListPlaylists(t *testing.T) {
	r := newTestRouter(t)

	rec := do(r, http.MethodGet, "/playlists")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("empty listing: got %d %s", rec.Code, rec.Body.String())
	}

	postChunk(t, r, "s2", videoChunk("720p", 1))
	postChunk(t, r, "s1", videoChunk("480p", 1))
	postChunk(t, r, "s1", videoChunk("720p", 1))
	do(r, http.MethodPost, "/playlists/s2/end")

	rec = do(r, http.MethodGet, "/playlists")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var list []PlaylistSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := []PlaylistSummary{
		{ID: "s1", Type: "live", Flavors: []string{"480p", "720p"}},
		{ID: "s2", Type: "vod", Flavors: []string{"720p"}},
	}
	if len(list) != len(want) {
		t.Fatalf("expected %d playlists, got %s", len(want), rec.Body.String())
	}
	for i := range want {
		if list[i].ID != want[i].ID || list[i].Type != want[i].Type ||
			strings.Join(list[i].Flavors, ",") != strings.Join(want[i].Flavors, ",") {
			t.Errorf("playlist %d: got %+v want %+v", i, list[i], want[i])
		}
	}
}

func TestHandler_GetPlaylist(t *testing.T) {
	r := newTestRouter(t)

	if rec := do(r, http.MethodGet, "/playlists/missing"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	postChunk(t, r, "s1", videoChunk("720p", 1))
	rec := do(r, http.MethodGet, "/playlists/s1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var doc struct {
		PlaylistType string            `json:"playlistType"`
		Sequences    []json.RawMessage `json:"sequences"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.PlaylistType != "live" || len(doc.Sequences) != 1 {
		t.Errorf("unexpected playlist: %s", rec.Body.String())
	}
}

func TestHandler_GetFlavorPlaylist(t *testing.T) {
	r := newTestRouter(t)
	for n := int64(3); n <= 5; n++ {
		if rec := postChunk(t, r, "s1", videoChunk("720p", n)); rec.Code != http.StatusCreated {
			t.Fatalf("chunk %d: expected 201, got %d", n, rec.Code)
		}
	}

	rec := do(r, http.MethodGet, "/playlists/s1/flavors/720p/playlist.m3u8")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/vnd.apple.mpegurl" {
		t.Errorf("expected playlist content type, got %s", rec.Header().Get("Content-Type"))
	}
	body := rec.Body.String()
	if !strings.Contains(body, "#EXTM3U") || !strings.Contains(body, "#EXT-X-MEDIA-SEQUENCE:0") {
		t.Errorf("unexpected playlist body: %s", body)
	}

	if rec := do(r, http.MethodGet, "/playlists/s1/flavors/480p/playlist.m3u8"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown flavor: expected 404, got %d", rec.Code)
	}
	if rec := do(r, http.MethodGet, "/playlists/missing/flavors/720p/playlist.m3u8"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown playlist: expected 404, got %d", rec.Code)
	}
}

func TestHandler_Diagnostics(t *testing.T) {
	r := newTestRouter(t)
	postChunk(t, r, "s1", videoChunk("720p", 1))

	rec := do(r, http.MethodGet, "/playlists/s1/diagnostics?unit=10000")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var d window.Diagnostics
	if err := json.Unmarshal(rec.Body.Bytes(), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.Now != 9 || d.Window["P"] != [2]int64{1, 2} {
		t.Errorf("unexpected diagnostics: %s", rec.Body.String())
	}

	if rec := do(r, http.MethodGet, "/playlists/s1/diagnostics?unit=abc"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad unit: expected 400, got %d", rec.Code)
	}
}

func TestHandler_EndStream(t *testing.T) {
	r := newTestRouter(t)

	if rec := do(r, http.MethodPost, "/playlists/s1/end"); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_DeletePlaylist(t *testing.T) {
	r := newTestRouter(t)
	postChunk(t, r, "s1", videoChunk("720p", 1))

	if rec := do(r, http.MethodDelete, "/playlists/s1"); rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if rec := do(r, http.MethodDelete, "/playlists/s1"); rec.Code != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", rec.Code)
	}
}
