package window

import (
	"errors"
	"fmt"
	"log/slog"
)

// Validation failures, one per rule.
var (
	ErrInvalidType         = errors.New("invalid playlist type")
	ErrNegativeDuration    = errors.New("negative slot duration")
	ErrSlotCountMismatch   = errors.New("clip times and durations differ in length")
	ErrClipCountMismatch   = errors.New("flavor clip count differs from slot count")
	ErrSequence            = errors.New("invalid flavor log")
	ErrClipDurationShort   = errors.New("clip duration falls short of slot duration")
	ErrBeforeBaseTime      = errors.New("first slot starts before segment base time")
	ErrGaps                = errors.New("invalid gap records")
	ErrSlotOrder           = errors.New("slot starts before previous slot ends")
	ErrWindowTooLong       = errors.New("window exceeds manifest time window")
	ErrNegativeOffset      = errors.New("negative source offset")
	ErrVideoOffsetMismatch = errors.New("video offsets differ across flavors")
	ErrAudioOffsetMismatch = errors.New("audio offsets differ across flavors")
)

// Validate checks the structural and cross-flavor invariants of the playlist.
// It logs the first violation and returns false; it never panics.
func (p *Playlist) Validate() bool {
	if err := p.validate(); err != nil {
		p.log.Warn("playlist validation failed", slog.String("error", err.Error()))
		return false
	}
	return true
}

func (p *Playlist) validate() error {
	st := &p.state

	if st.PlaylistType != Live && st.PlaylistType != VOD {
		return fmt.Errorf("%w: %q", ErrInvalidType, st.PlaylistType)
	}

	for i, d := range st.Durations {
		if d < 0 {
			return fmt.Errorf("%w: slot %d = %d", ErrNegativeDuration, i, d)
		}
	}

	if len(st.ClipTimes) != len(st.Durations) {
		return fmt.Errorf("%w: %d != %d", ErrSlotCountMismatch, len(st.ClipTimes), len(st.Durations))
	}

	for _, s := range st.Sequences {
		if len(s.Clips) > 0 && len(s.Clips) != len(st.Durations) {
			return fmt.Errorf("%w: flavor %s has %d clips, %d slots", ErrClipCountMismatch, s.ID, len(s.Clips), len(st.Durations))
		}
		if err := s.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrSequence, err)
		}
	}

	if len(st.Sequences) == 1 {
		for i, c := range st.Sequences[0].Clips {
			clipD, overallD := c.TotalDuration(), st.Durations[i]
			if overallD-clipD > p.limits.TimestampTolerance {
				return fmt.Errorf("%w: clip %d internal duration %d, overall %d", ErrClipDurationShort, i, clipD, overallD)
			}
		}
	}

	if len(st.ClipTimes) > 0 && st.ClipTimes[0].Value() < st.SegmentBaseTime {
		return fmt.Errorf("%w: %d < %d", ErrBeforeBaseTime, st.ClipTimes[0].Value(), st.SegmentBaseTime)
	}

	if !p.gaps.Validate() {
		return ErrGaps
	}

	for i := 1; i < len(st.ClipTimes); i++ {
		if end := st.ClipTimes[i-1].Value() + st.Durations[i-1]; end > st.ClipTimes[i].Value() {
			return fmt.Errorf("%w: slot %d ends at %d, slot %d starts at %d", ErrSlotOrder, i-1, end, i, st.ClipTimes[i].Value())
		}
	}

	if limit := p.limits.ManifestTimeWindow; limit > 0 && 3*limit < 2*p.TotalDuration() {
		return fmt.Errorf("%w: %d > 1.5 * %d", ErrWindowTooLong, p.TotalDuration(), limit)
	}

	if len(st.Sequences) > 1 {
		for i := range st.ClipTimes {
			if err := p.validateOffsets(i); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateOffsets gathers the sources of every flavor at slot i. Video
// offsets must agree except for the first one, the ingest flavor, whose
// keyframes are not aligned; audio offsets must all agree.
func (p *Playlist) validateOffsets(i int) error {
	var videos, audios []int64
	for _, s := range p.state.Sequences {
		if len(s.Clips) <= i {
			continue
		}
		for _, o := range s.Clips[i].Offsets() {
			if o.IsVideo {
				videos = append(videos, o.Offset)
			} else {
				audios = append(audios, o.Offset)
			}
		}
	}

	for _, set := range [][]int64{videos, audios} {
		for _, o := range set {
			if o < 0 {
				return fmt.Errorf("%w: slot %d offset %d", ErrNegativeOffset, i, o)
			}
		}
	}
	for j := 2; j < len(videos); j++ {
		if videos[j] != videos[1] {
			return fmt.Errorf("%w: slot %d %v", ErrVideoOffsetMismatch, i, videos)
		}
	}
	for j := 1; j < len(audios); j++ {
		if audios[j] != audios[0] {
			return fmt.Errorf("%w: slot %d %v", ErrAudioOffsetMismatch, i, audios)
		}
	}
	return nil
}
