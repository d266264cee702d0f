package orchestrator

import (
	"fmt"

	"hls-window/internal/window"

	"github.com/grafov/m3u8"
)

// segmentsFromClips flattens clip views into media segments. Sequence numbers
// are the ordinals the flavor gave each file on insert, so dropping the head
// chunk always advances the first one.
func segmentsFromClips(views []window.ClipView) []Segment {
	var out []Segment
	for i, v := range views {
		for j, c := range v.Chunks {
			out = append(out, Segment{
				URI:           c.Name,
				Sequence:      c.Seq,
				Duration:      float64(c.Duration) / 1000,
				Discontinuity: i > 0 && j == 0,
			})
		}
	}
	return out
}

// BuildMediaPlaylist converts segments (ordered by DTS) into an HLS media
// playlist. If ended is true the playlist is closed with #EXT-X-ENDLIST.
// minTarget (seconds) is a floor for #EXT-X-TARGETDURATION. An empty segments
// slice produces a minimal valid playlist with media sequence 0.
func BuildMediaPlaylist(segments []Segment, ended bool, minTarget float64) (string, error) {
	capacity := uint(len(segments))
	if capacity == 0 {
		capacity = 1
	}
	pl, err := m3u8.NewMediaPlaylist(0, capacity)
	if err != nil {
		return "", fmt.Errorf("new media playlist: %w", err)
	}

	pl.TargetDuration = minTarget
	if len(segments) == 0 && minTarget <= 0 {
		pl.TargetDuration = 1
	} else if len(segments) > 0 && segments[0].Sequence > 0 {
		pl.SeqNo = uint64(segments[0].Sequence)
	}
	for _, seg := range segments {
		if err := pl.Append(seg.URI, seg.Duration, ""); err != nil {
			return "", fmt.Errorf("append segment %s: %w", seg.URI, err)
		}
		if seg.Discontinuity {
			if err := pl.SetDiscontinuity(); err != nil {
				return "", fmt.Errorf("discontinuity at %s: %w", seg.URI, err)
			}
		}
	}

	if ended {
		pl.Close()
	}
	return pl.Encode().String(), nil
}
