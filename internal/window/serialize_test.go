package window

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	return Options{ID: "restored", Logger: slog.New(slog.NewTextHandler(io.Discard, nil)), Strict: true}
}

func slotValues(p *Playlist) []int64 {
	out := make([]int64, 0, p.SlotCount())
	for _, c := range p.state.ClipTimes {
		out = append(out, c.Value())
	}
	return out
}

func TestSerialize_never_published_round_trips_in_full(t *testing.T) {
	p := newTestPlaylist(t, Limits{})
	mustInsert(t, p,
		chunk("a", "1.ts", video(200, 50)),
		chunk("b", "1.ts", video(0, 100)),
		discontinuity(chunk("a", "2.ts", video(300, 50))),
	)
	p.Reconcile()

	raw, err := json.Marshal(p)
	require.NoError(t, err)

	q, err := Unmarshal(raw, testOptions())
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, q.Flavors())
	if diff := cmp.Diff(slotValues(p), slotValues(q)); diff != "" {
		t.Errorf("clip times mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(p.state.Durations, q.state.Durations); diff != "" {
		t.Errorf("durations mismatch (-want +got):\n%s", diff)
	}

	// restored clips share the restored slot cells
	a := q.Sequence("a")
	require.Len(t, a.Clips, 2)
	assert.Same(t, q.state.ClipTimes[1], a.Clips[1].time)
	assert.True(t, q.CheckFileExists("2.ts"))

	again, err := json.Marshal(q)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(again))
}

func TestSerialize_published_keeps_overlapping_flavors(t *testing.T) {
	p := newTestPlaylist(t, Limits{})
	mustInsert(t, p,
		chunk("a", "1.ts", video(200, 50)),
		chunk("b", "1.ts", video(0, 100)),
		chunk("c", "1.ts", video(210, 40)),
	)
	require.True(t, p.IsModified())

	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var wire struct {
		PlaylistType string `json:"playlistType"`
		Sequences    []struct {
			ID string `json:"id"`
		} `json:"sequences"`
	}
	require.NoError(t, json.Unmarshal(raw, &wire))
	assert.Equal(t, "live", wire.PlaylistType)
	ids := make([]string, 0, len(wire.Sequences))
	for _, s := range wire.Sequences {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"a", "c"}, ids)
	assert.Equal(t, []string{"a", "b", "c"}, p.Flavors(), "stale flavor stays in memory")

	q, err := Unmarshal(raw, testOptions())
	require.NoError(t, err)
	require.True(t, q.IsModified())
	assert.Equal(t, p.Published(), q.Published())

	again, err := json.Marshal(q)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(again))
}

func TestSerialize_published_keeps_late_flavor(t *testing.T) {
	p := newTestPlaylist(t, Limits{})
	mustInsert(t, p,
		chunk("a", "1.ts", video(0, 100)),
		discontinuity(chunk("a", "2.ts", video(200, 100))),
	)
	require.True(t, p.IsModified())

	mustInsert(t, p, chunk("b", "1.ts", video(200, 100)))
	require.True(t, p.Sequence("b").Clips[0].IsEmpty(), "late flavor starts with a placeholder")
	mustInsert(t, p,
		chunk("a", "3.ts", video(300, 100)),
		chunk("b", "2.ts", video(300, 100)),
	)
	require.True(t, p.IsModified())
	require.True(t, p.Validate())

	raw, err := json.Marshal(p)
	require.NoError(t, err)

	q, err := Unmarshal(raw, testOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, q.Flavors())
	assert.True(t, q.CheckFileExists("2.ts"))
	assert.True(t, q.Validate())
}

func TestUnmarshal_keeps_chunk_ordinals(t *testing.T) {
	p := newTestPlaylist(t, Limits{})
	mustInsert(t, p,
		chunk("a", "1.ts", video(0, 100), audio(0, 100)),
		chunk("a", "2.ts", video(100, 100), audio(100, 100)),
	)
	p.Reconcile()

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	q, err := Unmarshal(raw, testOptions())
	require.NoError(t, err)

	a := q.Sequence("a")
	assert.Equal(t, int64(2), a.NextSeq)
	for _, src := range a.Clips[0].Sources {
		assert.Equal(t, []int64{0, 1}, []int64{src.Chunks[0].Seq, src.Chunks[1].Seq})
	}

	mustInsert(t, q, chunk("a", "3.ts", video(200, 100)))
	chunks := a.Clips[0].Sources[0].Chunks
	assert.Equal(t, int64(2), chunks[len(chunks)-1].Seq)
}

func TestUnmarshal_restores_next_ordinal_when_missing(t *testing.T) {
	raw := `{
		"playlistType": "live",
		"discontinuity": false,
		"segmentBaseTime": 946684800000,
		"clipTimes": [0],
		"durations": [0],
		"sequences": [{"id": "a", "clips": [{"files": ["7.ts"], "sources": [
			{"isVideo": true, "chunks": [{"name": "7.ts", "seq": 6, "dts": 946684801000, "duration": 2000}]}
		]}]}]
	}`
	p, err := Unmarshal([]byte(raw), testOptions())
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.Sequence("a").NextSeq)
}

func TestUnmarshal_rejects_malformed(t *testing.T) {
	for name, raw := range map[string]string{
		"not_json":        "{",
		"length_mismatch": `{"playlistType":"live","clipTimes":[1,2],"durations":[0],"sequences":[]}`,
		"null_clip_time":  `{"playlistType":"live","clipTimes":[null],"durations":[0],"sequences":[]}`,
		"null_sequence":   `{"playlistType":"live","clipTimes":[],"durations":[],"sequences":[null]}`,
		"null_clip":       `{"playlistType":"live","clipTimes":[1],"durations":[0],"sequences":[{"id":"a","clips":[null]}]}`,
		"null_source":     `{"playlistType":"live","clipTimes":[1],"durations":[0],"sequences":[{"id":"a","clips":[{"files":[],"sources":[null]}]}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Unmarshal([]byte(raw), testOptions())
			assert.Error(t, err)
		})
	}
}

func TestFromJSON_falls_back_to_empty_playlist(t *testing.T) {
	for name, raw := range map[string]string{
		"garbage":     "garbage",
		"null_source": `{"playlistType":"live","clipTimes":[1],"durations":[0],"sequences":[{"id":"a","clips":[{"files":["1.ts"],"sources":[null]}]}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			p := FromJSON([]byte(raw), testOptions())
			require.NotNil(t, p)
			assert.Equal(t, Live, p.Type())
			assert.Equal(t, 0, p.SlotCount())
			assert.Equal(t, DefaultSegmentBaseTime, p.SegmentBaseTime())
			assert.True(t, p.Discontinuity())
			assert.Equal(t, "restored", p.ID())

			assert.NotPanics(t, func() {
				p.Reconcile()
				p.InsertChunk(chunk("a", "1.ts", video(0, 100)))
			})
		})
	}
}

func TestUnmarshal_restores_derived_state(t *testing.T) {
	raw := `{
		"playlistType": "live",
		"discontinuity": false,
		"segmentBaseTime": 946684800000,
		"clipTimes": [0],
		"durations": [0],
		"sequences": [{"id": "a", "clips": [{"files": ["1.ts"], "sources": [
			{"isVideo": true, "chunks": [{"name": "1.ts", "dts": 946684801000, "duration": 2000}]}
		]}]}]
	}`
	p, err := Unmarshal([]byte(raw), testOptions())
	require.NoError(t, err)

	start, dur := p.Slot(0)
	assert.Equal(t, base+1000, start)
	assert.Equal(t, int64(2000), dur)
	assert.False(t, p.Discontinuity())
	assert.Equal(t, base+1000, p.Sequence("a").BaseTime())
	assert.True(t, p.Validate())
}
