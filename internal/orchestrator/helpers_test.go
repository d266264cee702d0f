package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"hls-window/internal/platform/metrics"
	"hls-window/internal/window"
)

const testBase = window.DefaultSegmentBaseTime

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestService wires a Service and its repository the way cmd/server does.
func newTestService(t *testing.T, store Store, limits window.Limits) (*Service, *InMemoryRepository, *metrics.Metrics) {
	t.Helper()
	met := metrics.New()
	var svc *Service
	repo := NewInMemoryRepositoryWithStore(store, RepositoryOptions{
		Limits: limits,
		Logger: testLogger(),
		OnLoad: func(id PlaylistID, p *window.Playlist) { svc.WatchPlaylist(id, p) },
	})
	svc = NewService(repo, ServiceOptions{Logger: testLogger(), Metrics: met, ClipDuration: 10000})
	return svc, repo, met
}

// videoChunk is chunk n of a flavor, covering [n*10s, (n+1)*10s) past the base time.
func videoChunk(flavor FlavorID, n int64) ChunkRequest {
	return ChunkRequest{
		Flavor: flavor,
		Path:   fmt.Sprintf("/%s/%d.ts", flavor, n),
		Tracks: []TrackRequest{{IsVideo: true, DTS: testBase + n*10000, Duration: 10000}},
	}
}

func counterValue(t *testing.T, m *metrics.Metrics, name string, labels ...string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			match := true
			for i, l := range metric.GetLabel() {
				if i < len(labels) && l.GetValue() != labels[i] {
					match = false
				}
			}
			if match {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

// countingStore counts loads and can fail saves.
type countingStore struct {
	*InMemoryStore
	mu       sync.Mutex
	loads    int
	failSave bool
}

var errStoreDown = errors.New("store down")

func (s *countingStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	s.loads++
	s.mu.Unlock()
	return s.InMemoryStore.Load(ctx, key)
}

func (s *countingStore) Save(ctx context.Context, key string, data []byte) error {
	if s.failSave {
		return errStoreDown
	}
	return s.InMemoryStore.Save(ctx, key, data)
}
