package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"hls-window/internal/platform/metrics"
	"hls-window/internal/window"
)

// DefaultClipDuration is the nominal clip length in ms used as the target
// duration floor of rendered playlists when none is configured.
const DefaultClipDuration int64 = 10000

// Service drives the window engine for each ingested chunk and delegates
// storage and locking to the Repository.
type Service struct {
	repo         Repository
	log          *slog.Logger
	metrics      *metrics.Metrics
	clipDuration int64
}

// ServiceOptions configures a Service. Metrics may be nil.
type ServiceOptions struct {
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	ClipDuration int64
}

// NewService returns a Service that uses repo.
func NewService(repo Repository, opts ServiceOptions) *Service {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.ClipDuration <= 0 {
		opts.ClipDuration = DefaultClipDuration
	}
	return &Service{repo: repo, log: log, metrics: opts.Metrics, clipDuration: opts.ClipDuration}
}

// WatchPlaylist subscribes the service to a playlist's events. It is meant
// to be used as RepositoryOptions.OnLoad.
func (s *Service) WatchPlaylist(id PlaylistID, p *window.Playlist) {
	p.Subscribe(window.ListenerFunc(func(e window.Event) {
		if e.Type != window.EventBaseTimeChanged {
			return
		}
		s.log.Debug("base time changed",
			slog.String("playlist_id", string(id)),
			slog.Int64("base_time", e.Time))
		if s.metrics != nil {
			s.metrics.IncBaseTimeChanges()
		}
	}))
}

// InsertChunk places a chunk, trims the live window, publishes the window if
// it advanced and persists the playlist when it is consistent. accepted is
// false for a duplicate chunk.
func (s *Service) InsertChunk(ctx context.Context, id PlaylistID, req ChunkRequest) (InsertResult, error) {
	var res InsertResult
	if err := req.validate(); err != nil {
		s.countChunk(metrics.ResultRejected)
		return res, err
	}

	err := s.repo.Do(ctx, id, true, func(p *window.Playlist) error {
		if p.Ended() {
			return ErrStreamEnded
		}
		if !p.InsertChunk(req.chunkInfo()) {
			return nil
		}
		res.Accepted = true

		p.TrimToWindow()
		dropped := p.DroppedSlots()
		res.Published = p.IsModified()
		if s.metrics != nil {
			s.metrics.AddSlotsTruncated(p.DroppedSlots() - dropped)
			if res.Published {
				s.metrics.IncPublishes()
			}
		}

		if !p.Validate() {
			if s.metrics != nil {
				s.metrics.IncValidationFailures()
			}
			return nil
		}
		return s.repo.Save(ctx, id, p)
	})

	switch {
	case errors.Is(err, ErrStreamEnded):
		s.countChunk(metrics.ResultRejected)
	case err != nil:
	case res.Accepted:
		s.countChunk(metrics.ResultAccepted)
	default:
		s.countChunk(metrics.ResultDuplicate)
	}
	return res, err
}

// GetPlaylist returns the serialized playlist.
func (s *Service) GetPlaylist(ctx context.Context, id PlaylistID) ([]byte, error) {
	var data []byte
	err := s.repo.Do(ctx, id, false, func(p *window.Playlist) error {
		var err error
		data, err = json.Marshal(p)
		return err
	})
	return data, err
}

// Diagnostics returns the diagnostics view of the playlist in units of unit ms.
func (s *Service) Diagnostics(ctx context.Context, id PlaylistID, unit int64, now time.Time) (window.Diagnostics, error) {
	var d window.Diagnostics
	err := s.repo.Do(ctx, id, false, func(p *window.Playlist) error {
		d = p.Diagnostics(unit, now)
		return nil
	})
	return d, err
}

// RenderFlavor returns the HLS media playlist of one flavor's published window.
func (s *Service) RenderFlavor(ctx context.Context, id PlaylistID, flavor FlavorID) (string, error) {
	var out string
	err := s.repo.Do(ctx, id, false, func(p *window.Playlist) error {
		views, ok := p.Snapshot(string(flavor))
		if !ok {
			return ErrNotFound
		}
		var err error
		out, err = BuildMediaPlaylist(segmentsFromClips(views), p.Ended(), float64(s.clipDuration)/1000)
		return err
	})
	return out, err
}

// EndStream marks the stream as ended; new chunks will be rejected. Ending
// an unknown or already ended stream is a no-op.
func (s *Service) EndStream(ctx context.Context, id PlaylistID) error {
	err := s.repo.Do(ctx, id, false, func(p *window.Playlist) error {
		if p.Ended() {
			return nil
		}
		p.End()
		if s.metrics != nil {
			s.metrics.IncStreamsEnded()
		}
		return s.repo.Save(ctx, id, p)
	})
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// DeletePlaylist disposes the playlist and removes its stored state.
func (s *Service) DeletePlaylist(ctx context.Context, id PlaylistID) error {
	return s.repo.Delete(ctx, id)
}

// ListPlaylists summarizes every known playlist, loading stored ones on the
// way. Playlists deleted while listing are skipped.
func (s *Service) ListPlaylists(ctx context.Context) ([]PlaylistSummary, error) {
	ids, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]PlaylistSummary, 0, len(ids))
	for _, id := range ids {
		err := s.repo.Do(ctx, id, false, func(p *window.Playlist) error {
			out = append(out, PlaylistSummary{ID: id, Type: string(p.Type()), Flavors: p.Flavors()})
			return nil
		})
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ActivePlaylists returns the number of live playlists in memory.
func (s *Service) ActivePlaylists() int {
	return s.repo.ActivePlaylistCount()
}

func (s *Service) countChunk(result string) {
	if s.metrics != nil {
		s.metrics.IncChunks(result)
	}
}
