package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"hls-window/internal/window"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Repository defines the concurrency-safe contract for accessing and mutating
// playlists. A playlist is never touched by two callers at once.
type Repository interface {
	// Do runs fn with exclusive access to the playlist. If create is true a
	// missing playlist is created, otherwise ErrNotFound is returned.
	Do(ctx context.Context, id PlaylistID, create bool, fn func(p *window.Playlist) error) error

	// Save persists p. Callers must be inside Do for the same id.
	Save(ctx context.Context, id PlaylistID, p *window.Playlist) error

	// Delete disposes the playlist and removes it from the store.
	Delete(ctx context.Context, id PlaylistID) error

	// List returns the ids of stored and loaded playlists, sorted.
	List(ctx context.Context) ([]PlaylistID, error)

	// ActivePlaylistCount returns the number of loaded playlists that are
	// not ended. Used for metrics.
	ActivePlaylistCount() int
}

var (
	// ErrStreamEnded is returned when inserting into a playlist whose stream
	// has already been ended.
	ErrStreamEnded = errors.New("stream has ended")

	// ErrNotFound is returned for playlists or flavors that do not exist.
	ErrNotFound = errors.New("playlist not found")

	// ErrInvalidChunk is returned for chunk requests that cannot be placed.
	ErrInvalidChunk = errors.New("invalid chunk")
)

// RepositoryOptions configures the playlists a repository creates.
type RepositoryOptions struct {
	Limits window.Limits
	Strict bool
	Logger *slog.Logger
	// OnLoad is called once for each playlist created or loaded, before it
	// is visible to other callers.
	OnLoad func(id PlaylistID, p *window.Playlist)
}

// entry serializes access to one playlist.
type entry struct {
	mu       sync.Mutex
	pl       *window.Playlist
	instance string
}

// InMemoryRepository keeps loaded playlists in memory and writes them
// through to a Store.
type InMemoryRepository struct {
	mu      sync.RWMutex
	entries map[PlaylistID]*entry
	store   Store
	loads   singleflight.Group
	opts    RepositoryOptions
	log     *slog.Logger
}

// NewInMemoryRepository constructs a new repository with a default in-memory store.
func NewInMemoryRepository(opts RepositoryOptions) *InMemoryRepository {
	return NewInMemoryRepositoryWithStore(NewInMemoryStore(), opts)
}

// NewInMemoryRepositoryWithStore constructs a repository that uses the given Store.
func NewInMemoryRepositoryWithStore(store Store, opts RepositoryOptions) *InMemoryRepository {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &InMemoryRepository{
		entries: make(map[PlaylistID]*entry),
		store:   store,
		opts:    opts,
		log:     log,
	}
}

// Do implements Repository.Do.
func (r *InMemoryRepository) Do(ctx context.Context, id PlaylistID, create bool, fn func(p *window.Playlist) error) error {
	e, err := r.entry(ctx, id, create)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pl == nil {
		// deleted while we waited
		return ErrNotFound
	}
	return fn(e.pl)
}

// Save implements Repository.Save.
func (r *InMemoryRepository) Save(ctx context.Context, id PlaylistID, p *window.Playlist) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal playlist %s: %w", id, err)
	}
	if err := r.store.Save(ctx, string(id), data); err != nil {
		return fmt.Errorf("save playlist %s: %w", id, err)
	}
	return nil
}

// Delete implements Repository.Delete.
func (r *InMemoryRepository) Delete(ctx context.Context, id PlaylistID) error {
	r.mu.Lock()
	e, loaded := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if loaded {
		e.mu.Lock()
		e.pl.Dispose()
		e.pl = nil
		e.mu.Unlock()
	} else {
		_, found, err := r.store.Load(ctx, string(id))
		if err != nil {
			return fmt.Errorf("load playlist %s: %w", id, err)
		}
		if !found {
			return ErrNotFound
		}
	}

	if err := r.store.Delete(ctx, string(id)); err != nil {
		return fmt.Errorf("delete playlist %s: %w", id, err)
	}
	return nil
}

// List implements Repository.List.
func (r *InMemoryRepository) List(ctx context.Context) ([]PlaylistID, error) {
	keys, err := r.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list playlists: %w", err)
	}
	seen := make(map[PlaylistID]struct{}, len(keys))
	ids := make([]PlaylistID, 0, len(keys))
	for _, k := range keys {
		seen[PlaylistID(k)] = struct{}{}
		ids = append(ids, PlaylistID(k))
	}

	r.mu.RLock()
	for id := range r.entries {
		if _, ok := seen[id]; !ok {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids, nil
}

// Preload loads every stored playlist so OnLoad runs and the active gauge
// is right before the first request. It returns the number loaded; a
// playlist that fails to load is logged and skipped.
func (r *InMemoryRepository) Preload(ctx context.Context) (int, error) {
	keys, err := r.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list playlists: %w", err)
	}
	n := 0
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if _, err := r.entry(ctx, PlaylistID(k), false); err != nil {
			r.log.Warn("preload playlist", slog.String("playlist_id", k), slog.String("error", err.Error()))
			continue
		}
		n++
	}
	return n, nil
}

// ActivePlaylistCount implements Repository.ActivePlaylistCount.
func (r *InMemoryRepository) ActivePlaylistCount() int {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	n := 0
	for _, e := range entries {
		e.mu.Lock()
		if e.pl != nil && !e.pl.Ended() {
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// entry returns the loaded entry for id, loading it from the store or
// creating it on first use. Concurrent first loads share one store read.
func (r *InMemoryRepository) entry(ctx context.Context, id PlaylistID, create bool) (*entry, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if ok {
		return e, nil
	}

	key := fmt.Sprintf("%s\x00%t", id, create)
	v, err, _ := r.loads.Do(key, func() (any, error) {
		return r.load(ctx, id, create)
	})
	if err != nil {
		return nil, err
	}
	return v.(*entry), nil
}

func (r *InMemoryRepository) load(ctx context.Context, id PlaylistID, create bool) (*entry, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if ok {
		return e, nil
	}

	data, found, err := r.store.Load(ctx, string(id))
	if err != nil {
		return nil, fmt.Errorf("load playlist %s: %w", id, err)
	}
	if !found && !create {
		return nil, ErrNotFound
	}

	instance := uuid.NewString()
	opts := window.Options{
		ID:     string(id),
		Logger: r.log.With(slog.String("instance", instance)),
		Limits: r.opts.Limits,
		Strict: r.opts.Strict,
	}
	var pl *window.Playlist
	if found {
		pl = window.FromJSON(data, opts)
	} else {
		pl = window.New(opts)
	}
	if r.opts.OnLoad != nil {
		r.opts.OnLoad(id, pl)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[id]; ok {
		return existing, nil
	}
	e = &entry{pl: pl, instance: instance}
	r.entries[id] = e
	r.log.Debug("playlist loaded",
		slog.String("playlist_id", string(id)),
		slog.String("instance", instance),
		slog.Bool("restored", found))
	return e, nil
}
