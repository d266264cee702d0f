package orchestrator

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	playlistContentType = "application/vnd.apple.mpegurl"
	jsonContentType     = "application/json"
)

// Handler exposes playlist HTTP endpoints using go-chi.
type Handler struct {
	svc *Service
	log *slog.Logger
	now func() time.Time
}

// NewHandler returns a Handler that uses the given Service and Logger.
func NewHandler(svc *Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log, now: time.Now}
}

// Routes mounts the playlist endpoints on r. ingest wraps the chunk
// ingestion route only (e.g. a rate limiter) and may be nil.
func (h *Handler) Routes(r chi.Router, ingest func(http.Handler) http.Handler) {
	r.Get("/playlists", h.ListPlaylists)
	r.Route("/playlists/{playlist_id}", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if ingest != nil {
				r.Use(ingest)
			}
			r.Post("/chunks", h.InsertChunk)
		})
		r.Get("/", h.GetPlaylist)
		r.Delete("/", h.DeletePlaylist)
		r.Get("/diagnostics", h.Diagnostics)
		r.Post("/end", h.EndStream)
		r.Get("/flavors/{flavor}/playlist.m3u8", h.GetFlavorPlaylist)
	})
}

// InsertChunk handles POST /playlists/{playlist_id}/chunks.
// Responds 201 when the chunk was placed and 200 for a duplicate.
func (h *Handler) InsertChunk(w http.ResponseWriter, r *http.Request) {
	id := PlaylistID(chi.URLParam(r, "playlist_id"))
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var req ChunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid chunk body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	res, err := h.svc.InsertChunk(r.Context(), id, req)
	switch {
	case errors.Is(err, ErrInvalidChunk):
		w.WriteHeader(http.StatusBadRequest)
		return
	case errors.Is(err, ErrStreamEnded):
		h.log.Info("chunk rejected stream ended",
			slog.String("playlist_id", string(id)),
			slog.String("flavor", string(req.Flavor)),
			slog.String("path", req.Path))
		w.WriteHeader(http.StatusConflict)
		return
	case err != nil:
		h.log.Error("insert chunk failed", slog.String("playlist_id", string(id)), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	status := http.StatusCreated
	if !res.Accepted {
		status = http.StatusOK
	}
	h.log.Debug("chunk inserted",
		slog.String("playlist_id", string(id)),
		slog.String("flavor", string(req.Flavor)),
		slog.String("path", req.Path),
		slog.Bool("accepted", res.Accepted),
		slog.Bool("published", res.Published))
	h.writeJSON(w, status, res)
}

// ListPlaylists handles GET /playlists.
func (h *Handler) ListPlaylists(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListPlaylists(r.Context())
	if err != nil {
		h.log.Error("list playlists failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

// GetPlaylist handles GET /playlists/{playlist_id}.
func (h *Handler) GetPlaylist(w http.ResponseWriter, r *http.Request) {
	id := PlaylistID(chi.URLParam(r, "playlist_id"))
	data, err := h.svc.GetPlaylist(r.Context(), id)
	if err != nil {
		h.writeError(w, id, "get playlist failed", err)
		return
	}
	w.Header().Set("Content-Type", jsonContentType)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Diagnostics handles GET /playlists/{playlist_id}/diagnostics?unit=<ms>.
func (h *Handler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	id := PlaylistID(chi.URLParam(r, "playlist_id"))

	var unit int64
	if s := r.URL.Query().Get("unit"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n <= 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		unit = n
	}

	d, err := h.svc.Diagnostics(r.Context(), id, unit, h.now())
	if err != nil {
		h.writeError(w, id, "diagnostics failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, d)
}

// GetFlavorPlaylist handles GET /playlists/{playlist_id}/flavors/{flavor}/playlist.m3u8.
func (h *Handler) GetFlavorPlaylist(w http.ResponseWriter, r *http.Request) {
	id := PlaylistID(chi.URLParam(r, "playlist_id"))
	flavor := FlavorID(chi.URLParam(r, "flavor"))
	if flavor == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	m3u8, err := h.svc.RenderFlavor(r.Context(), id, flavor)
	if err != nil {
		h.writeError(w, id, "render flavor failed", err)
		return
	}

	w.Header().Set("Content-Type", playlistContentType)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(m3u8))
}

// EndStream handles POST /playlists/{playlist_id}/end.
func (h *Handler) EndStream(w http.ResponseWriter, r *http.Request) {
	id := PlaylistID(chi.URLParam(r, "playlist_id"))
	if err := h.svc.EndStream(r.Context(), id); err != nil {
		h.writeError(w, id, "end stream failed", err)
		return
	}
	h.log.Info("stream ended", slog.String("playlist_id", string(id)))
	w.WriteHeader(http.StatusOK)
}

// DeletePlaylist handles DELETE /playlists/{playlist_id}.
func (h *Handler) DeletePlaylist(w http.ResponseWriter, r *http.Request) {
	id := PlaylistID(chi.URLParam(r, "playlist_id"))
	if err := h.svc.DeletePlaylist(r.Context(), id); err != nil {
		h.writeError(w, id, "delete playlist failed", err)
		return
	}
	h.log.Info("playlist deleted", slog.String("playlist_id", string(id)))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", jsonContentType)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("write response failed", slog.String("error", err.Error()))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, id PlaylistID, msg string, err error) {
	if errors.Is(err, ErrNotFound) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	h.log.Error(msg, slog.String("playlist_id", string(id)), slog.String("error", err.Error()))
	w.WriteHeader(http.StatusInternalServerError)
}
