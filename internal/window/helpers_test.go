package window

import (
	"io"
	"log/slog"
	"testing"
)

const base = DefaultSegmentBaseTime

func newTestPlaylist(t *testing.T, limits Limits) *Playlist {
	t.Helper()
	return New(Options{
		ID:     "test",
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Limits: limits,
		Strict: true,
	})
}

func video(dts, dur int64) TrackInfo { return TrackInfo{IsVideo: true, DTS: base + dts, Duration: dur} }
func audio(dts, dur int64) TrackInfo { return TrackInfo{DTS: base + dts, Duration: dur} }

func chunk(flavor, name string, tracks ...TrackInfo) ChunkInfo {
	return ChunkInfo{Flavor: flavor, Path: "/" + flavor + "/" + name, Tracks: tracks}
}

func discontinuity(c ChunkInfo) ChunkInfo {
	c.Discontinuity = true
	return c
}

func mustInsert(t *testing.T, p *Playlist, chunks ...ChunkInfo) {
	t.Helper()
	for _, c := range chunks {
		if !p.InsertChunk(c) {
			t.Fatalf("InsertChunk(%s) rejected", c.Path)
		}
	}
}
