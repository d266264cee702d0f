package orchestrator

import (
	"hls-window/internal/window"
)

// PlaylistID uniquely identifies a stream's multi-flavor playlist.
type PlaylistID string

// FlavorID identifies one flavor (rendition) of a playlist, e.g. "720p".
type FlavorID string

// TrackRequest is the per-track timing of an ingested chunk, in milliseconds.
type TrackRequest struct {
	IsVideo  bool  `json:"isVideo"`
	DTS      int64 `json:"dts"`
	Duration int64 `json:"duration"`
}

// ChunkRequest is the JSON body for POST /playlists/{playlist_id}/chunks.
// Body: { "flavor": "720p", "path": "/720p/42.ts", "tracks": [{"isVideo": true, "dts": 946684810000, "duration": 10000}] }.
type ChunkRequest struct {
	Flavor        FlavorID       `json:"flavor"`
	Path          string         `json:"path"`
	Discontinuity bool           `json:"discontinuity"`
	Tracks        []TrackRequest `json:"tracks"`
}

// validate rejects requests the playlist could never place.
func (c ChunkRequest) validate() error {
	if c.Flavor == "" || c.Path == "" {
		return ErrInvalidChunk
	}
	for _, t := range c.Tracks {
		if t.Duration < 0 || t.DTS < 0 {
			return ErrInvalidChunk
		}
	}
	return nil
}

func (c ChunkRequest) chunkInfo() window.ChunkInfo {
	info := window.ChunkInfo{
		Flavor:        string(c.Flavor),
		Path:          c.Path,
		Discontinuity: c.Discontinuity,
		Tracks:        make([]window.TrackInfo, 0, len(c.Tracks)),
	}
	for _, t := range c.Tracks {
		info.Tracks = append(info.Tracks, window.TrackInfo{IsVideo: t.IsVideo, DTS: t.DTS, Duration: t.Duration})
	}
	return info
}

// InsertResult is the response body of a chunk insertion.
type InsertResult struct {
	Accepted  bool `json:"accepted"`
	Published bool `json:"published,omitempty"`
}

// PlaylistSummary is one entry of the playlist listing.
type PlaylistSummary struct {
	ID      PlaylistID `json:"id"`
	Type    string     `json:"playlistType"`
	Flavors []string   `json:"flavors"`
}

// Segment is one media segment of a rendered flavor playlist.
type Segment struct {
	URI      string
	Sequence int64
	// Duration in seconds.
	Duration float64
	// Discontinuity marks the first segment of a new clip.
	Discontinuity bool
}
