package window

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// MarshalJSON emits the persisted form. Once a window has been published,
// flavors whose oldest media does not overlap it are left out; they stay in
// memory. Placeholder clips of a late-joining flavor are skipped.
func (p *Playlist) MarshalJSON() ([]byte, error) {
	if !p.minMax.Valid() {
		return json.Marshal(&p.state)
	}

	out := p.state
	out.Sequences = make([]*Sequence, 0, len(p.state.Sequences))
	for _, s := range p.state.Sequences {
		if r := s.firstMedia(); r.Valid() && r.Overlaps(p.minMax) {
			out.Sequences = append(out.Sequences, s)
		}
	}
	p.log.Debug("serialize", slog.Int("sequences", len(out.Sequences)))
	return json.Marshal(&out)
}

// Unmarshal rebuilds a playlist from its persisted form and reconciles it
// once to restore the derived state.
func Unmarshal(data []byte, opts Options) (*Playlist, error) {
	var st record
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal playlist: %w", err)
	}
	if len(st.ClipTimes) != len(st.Durations) {
		return nil, fmt.Errorf("unmarshal playlist: %d clip times for %d durations", len(st.ClipTimes), len(st.Durations))
	}
	for _, c := range st.ClipTimes {
		if c == nil {
			return nil, errors.New("unmarshal playlist: null clip time")
		}
	}
	for _, s := range st.Sequences {
		if s == nil {
			return nil, errors.New("unmarshal playlist: null sequence")
		}
		for i, c := range s.Clips {
			if c == nil {
				return nil, fmt.Errorf("unmarshal playlist: flavor %s has a null clip", s.ID)
			}
			for _, src := range c.Sources {
				if src == nil {
					return nil, fmt.Errorf("unmarshal playlist: flavor %s clip %d has a null source", s.ID, i)
				}
			}
		}
	}
	if st.ClipTimes == nil {
		st.ClipTimes = []*TimeCell{}
	}
	if st.Durations == nil {
		st.Durations = []int64{}
	}
	if st.Sequences == nil {
		st.Sequences = []*Sequence{}
	}

	p := newPlaylist(opts)
	p.state = st
	for _, s := range p.state.Sequences {
		s.restoreNextSeq()
		p.bind(s)
	}
	p.Reconcile()
	return p, nil
}

// FromJSON is Unmarshal for callers that cannot fail: malformed data is
// logged and replaced by an empty playlist.
func FromJSON(data []byte, opts Options) *Playlist {
	p, err := Unmarshal(data, opts)
	if err == nil {
		return p
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Warn("unable to unserialize playlist, data loss is inevitable",
		slog.String("playlist", opts.ID),
		slog.String("error", err.Error()))
	return New(opts)
}
