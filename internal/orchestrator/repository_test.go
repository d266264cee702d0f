package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"hls-window/internal/window"
)

func TestInMemoryRepository_Do(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository(RepositoryOptions{Logger: testLogger()})

	t.Run("missing_without_create", func(t *testing.T) {
		err := repo.Do(ctx, "s1", false, func(*window.Playlist) error {
			t.Error("fn should not run for a missing playlist")
			return nil
		})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("create", func(t *testing.T) {
		err := repo.Do(ctx, "s1", true, func(p *window.Playlist) error {
			if p.ID() != "s1" || p.Type() != window.Live {
				t.Errorf("unexpected new playlist id=%s type=%s", p.ID(), p.Type())
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Do: %v", err)
		}
		if n := repo.ActivePlaylistCount(); n != 1 {
			t.Errorf("ActivePlaylistCount = %d, want 1", n)
		}
	})

	t.Run("fn_error_returned", func(t *testing.T) {
		want := errors.New("boom")
		if err := repo.Do(ctx, "s1", false, func(*window.Playlist) error { return want }); !errors.Is(err, want) {
			t.Errorf("expected fn error, got %v", err)
		}
	})
}

func TestInMemoryRepository_concurrent_inserts(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{InMemoryStore: NewInMemoryStore()}
	repo := NewInMemoryRepositoryWithStore(store, RepositoryOptions{Logger: testLogger()})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = repo.Do(ctx, "s1", true, func(p *window.Playlist) error {
				p.InsertChunk(window.ChunkInfo{
					Flavor: "720p",
					Path:   fmt.Sprintf("/720p/%d.ts", i),
					Tracks: []window.TrackInfo{{IsVideo: true, DTS: testBase + int64(i)*1000, Duration: 1000}},
				})
				return nil
			})
		}(i)
	}
	wg.Wait()

	if store.loads != 1 {
		t.Errorf("expected one store load, got %d", store.loads)
	}
	_ = repo.Do(ctx, "s1", false, func(p *window.Playlist) error {
		for i := 0; i < 20; i++ {
			if !p.CheckFileExists(fmt.Sprintf("%d.ts", i)) {
				t.Errorf("chunk %d missing", i)
			}
		}
		return nil
	})
}

func TestInMemoryRepository_Save_and_reload(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	repo := NewInMemoryRepositoryWithStore(store, RepositoryOptions{Logger: testLogger()})

	err := repo.Do(ctx, "s1", true, func(p *window.Playlist) error {
		p.InsertChunk(videoChunk("720p", 0).chunkInfo())
		p.End()
		return repo.Save(ctx, "s1", p)
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}

	loaded := 0
	other := NewInMemoryRepositoryWithStore(store, RepositoryOptions{
		Logger: testLogger(),
		OnLoad: func(PlaylistID, *window.Playlist) { loaded++ },
	})
	err = other.Do(ctx, "s1", false, func(p *window.Playlist) error {
		if !p.Ended() || !p.CheckFileExists("0.ts") {
			t.Errorf("restored playlist lost state: ended=%v", p.Ended())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do on restored: %v", err)
	}
	if loaded != 1 {
		t.Errorf("OnLoad called %d times, want 1", loaded)
	}
	if n := other.ActivePlaylistCount(); n != 0 {
		t.Errorf("ended playlist should not be active, got %d", n)
	}
}

func TestInMemoryRepository_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	repo := NewInMemoryRepositoryWithStore(store, RepositoryOptions{Logger: testLogger()})

	if err := repo.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// stored but never loaded
	_ = store.Save(ctx, "cold", []byte(`{}`))
	if err := repo.Delete(ctx, "cold"); err != nil {
		t.Errorf("Delete cold: %v", err)
	}

	var listeners int
	_ = repo.Do(ctx, "s1", true, func(p *window.Playlist) error {
		p.InsertChunk(videoChunk("720p", 0).chunkInfo())
		p.InsertChunk(videoChunk("480p", 0).chunkInfo())
		return repo.Save(ctx, "s1", p)
	})
	_ = repo.Do(ctx, "s1", false, func(p *window.Playlist) error {
		p.Subscribe(window.ListenerFunc(func(e window.Event) {
			if e.Type == window.EventItemDisposed {
				listeners++
			}
		}))
		return nil
	})

	if err := repo.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if listeners != 2 {
		t.Errorf("expected 2 disposed flavors, got %d", listeners)
	}
	if keys, _ := store.List(ctx); len(keys) != 0 {
		t.Errorf("store should be empty, got %v", keys)
	}
	if err := repo.Do(ctx, "s1", false, func(*window.Playlist) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestInMemoryRepository_List_and_Preload(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	first := NewInMemoryRepositoryWithStore(store, RepositoryOptions{Logger: testLogger()})
	for _, id := range []PlaylistID{"s2", "s1"} {
		err := first.Do(ctx, id, true, func(p *window.Playlist) error {
			p.InsertChunk(videoChunk("720p", 0).chunkInfo())
			return first.Save(ctx, id, p)
		})
		if err != nil {
			t.Fatalf("Do %s: %v", id, err)
		}
	}

	var loaded []PlaylistID
	second := NewInMemoryRepositoryWithStore(store, RepositoryOptions{
		Logger: testLogger(),
		OnLoad: func(id PlaylistID, _ *window.Playlist) { loaded = append(loaded, id) },
	})
	n, err := second.Preload(ctx)
	if err != nil {
		t.Fatalf("Preload: %v", err)
	}
	if n != 2 || len(loaded) != 2 {
		t.Errorf("Preload loaded %d (OnLoad %v), want 2", n, loaded)
	}
	if got := second.ActivePlaylistCount(); got != 2 {
		t.Errorf("ActivePlaylistCount = %d, want 2", got)
	}

	// created but never saved
	if err := second.Do(ctx, "s3", true, func(*window.Playlist) error { return nil }); err != nil {
		t.Fatalf("Do s3: %v", err)
	}
	ids, err := second.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if fmt.Sprint(ids) != "[s1 s2 s3]" {
		t.Errorf("List = %v, want [s1 s2 s3]", ids)
	}

	if err := second.Delete(ctx, "s2"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	ids, _ = second.List(ctx)
	if fmt.Sprint(ids) != "[s1 s3]" {
		t.Errorf("List after delete = %v, want [s1 s3]", ids)
	}
}
