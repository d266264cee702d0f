package window

import (
	"fmt"
	"log/slog"
)

// slotRange merges every flavor's DTS range for slot i and, when there is
// data, writes the result back into the slot.
func (p *Playlist) slotRange(i int) TimeRange {
	ranges := make([]TimeRange, 0, len(p.state.Sequences))
	for _, s := range p.state.Sequences {
		if len(s.Clips) > i {
			ranges = append(ranges, s.Clips[i].DTSRange())
		}
	}

	r := mergeRanges(ranges)
	if !r.Valid() {
		return r
	}

	p.state.Durations[i] = r.Max - r.Min
	if p.state.ClipTimes[i].Set(r.Min) {
		p.log.Info("slot time updated",
			slog.Int("slot", i),
			slog.Int64("clip_time", r.Min),
			slog.Int64("duration", p.state.Durations[i]))
		if i == 0 {
			p.events.Emit(Event{Type: EventBaseTimeChanged, Time: r.Min})
		}
	}
	return r
}

// Reconcile recomputes every slot's start time and duration from the flavors'
// current data and returns the window extent: the start of the first slot
// with data through the end of the last one. Running it again without new
// chunks changes nothing.
func (p *Playlist) Reconcile() TimeRange {
	defer p.events.Flush()
	return p.reconcile()
}

func (p *Playlist) reconcile() TimeRange {
	var ext TimeRange
	for i := range p.state.Durations {
		if i >= len(p.state.ClipTimes) {
			break
		}
		r := p.slotRange(i)
		if !r.Valid() {
			continue
		}
		if !ext.Valid() {
			ext = Range(r.Min, r.Max)
			continue
		}
		ext.Max = r.Max
	}
	p.gaps.Update()
	return ext
}

// IsModified reports whether the window advanced since it was last published
// and, if so, truncates drained history and publishes the new extent. The
// window is not advertised as advanced while its upper edge stays where it
// was published, even if something else moved.
func (p *Playlist) IsModified() bool {
	defer p.events.Flush()

	if len(p.state.Durations) == 0 {
		return false
	}

	ext := p.reconcile()
	if ext == p.minMax {
		return false
	}
	if p.minMax.Valid() && ext.Max == p.minMax.Max {
		return false
	}

	p.dropped += p.collectObsoleteClips()
	ext = p.reconcile()

	p.log.Info("playlist modified", slog.Int64("max", ext.Max), slog.Int64("published_max", p.minMax.Max))
	p.minMax = ext
	return true
}

// collectObsoleteClips drops slot 0 for as long as every flavor holding clips
// has fully drained its oldest one. A single flavor that still has media
// there keeps the slot alive.
func (p *Playlist) collectObsoleteClips() int {
	dropped := 0
	for len(p.state.Durations) > 0 {
		active := make([]*Sequence, 0, len(p.state.Sequences))
		for _, s := range p.state.Sequences {
			if len(s.Clips) > 0 {
				active = append(active, s)
			}
		}
		if len(active) == 0 {
			break
		}
		for _, s := range active {
			if !s.Clips[0].IsEmpty() {
				return dropped
			}
		}

		// flavors lagging behind by a discontinuity are checked more loosely
		aligned := make(map[*Sequence]bool, len(active))
		for _, s := range active {
			aligned[s] = len(s.Clips) == len(p.state.ClipTimes)
			p.log.Warn("pop obsolete clip", slog.String("flavor", s.ID), slog.Int("clips", len(s.Clips)))
			s.Clips[0] = nil
			s.Clips = s.Clips[1:]
		}
		p.state.ClipTimes = p.state.ClipTimes[1:]
		p.state.Durations = p.state.Durations[1:]
		dropped++

		if !p.assert(len(p.state.Durations) == len(p.state.ClipTimes),
			"durations %d != clip times %d", len(p.state.Durations), len(p.state.ClipTimes)) {
			break
		}
		consistent := true
		for _, s := range active {
			ok := len(s.Clips) <= len(p.state.ClipTimes)
			if aligned[s] {
				ok = len(s.Clips) == len(p.state.ClipTimes)
			}
			consistent = p.assert(ok,
				"flavor %s has %d clips for %d slots", s.ID, len(s.Clips), len(p.state.ClipTimes)) && consistent
		}
		if !consistent {
			break
		}
	}
	return dropped
}

// assert reports cond. A false cond is a bug in the reconciler/truncation
// pairing: it panics in strict mode and is logged otherwise.
func (p *Playlist) assert(cond bool, format string, args ...any) bool {
	if cond {
		return true
	}
	msg := fmt.Sprintf(format, args...)
	if p.strict {
		panic("window: assertion failed: " + msg)
	}
	p.log.Error("assertion failed", slog.String("detail", msg))
	return false
}
