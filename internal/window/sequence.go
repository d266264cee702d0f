package window

import (
	"fmt"
	"log/slog"
)

// slotOwner is the part of the playlist a sequence needs: a home for new
// clips and a place to report holes.
type slotOwner interface {
	slotCount() int
	allocateSlot(index int) *TimeCell
	CollapseGap(r TimeRange)
}

// Sequence is the log of one flavor.
type Sequence struct {
	ID    string  `json:"id"`
	Clips []*Clip `json:"clips"`
	// NextSeq is the ordinal the next accepted file will get.
	NextSeq int64 `json:"nextSeq"`

	owner    slotOwner
	sub      int
	baseTime int64
	log      *slog.Logger
}

// HandleEvent implements Listener.
func (s *Sequence) HandleEvent(e Event) {
	if e.Type != EventBaseTimeChanged {
		return
	}
	s.baseTime = e.Time
	s.log.Debug("base time changed", slog.String("flavor", s.ID), slog.Int64("base_time", e.Time))
}

// BaseTime returns the last slot 0 start this flavor was told about.
func (s *Sequence) BaseTime() int64 {
	return s.baseTime
}

// CheckFileExists reports whether a chunk with this file name was inserted
// into any clip still held by the sequence.
func (s *Sequence) CheckFileExists(name string) bool {
	for _, c := range s.Clips {
		if c.hasFile(name) {
			return true
		}
	}
	return false
}

func (s *Sequence) lastClip() *Clip {
	if len(s.Clips) == 0 {
		return nil
	}
	return s.Clips[len(s.Clips)-1]
}

// createAndAppendNewClip opens a clip in the next slot. A flavor joining a
// playlist that already has slots is padded with empty clips so its first
// real clip lands on the newest slot.
func (s *Sequence) createAndAppendNewClip() *Clip {
	if len(s.Clips) == 0 {
		for i := 0; i < s.owner.slotCount()-1; i++ {
			s.Clips = append(s.Clips, newClip(s.owner.allocateSlot(i)))
		}
	}
	c := newClip(s.owner.allocateSlot(len(s.Clips)))
	s.Clips = append(s.Clips, c)
	s.log.Info("new clip", slog.String("flavor", s.ID), slog.Int("clips", len(s.Clips)))
	return c
}

func (s *Sequence) insert(chunk ChunkInfo, name string) {
	c := s.lastClip()
	if c == nil || (chunk.Discontinuity && !c.IsEmpty()) {
		c = s.createAndAppendNewClip()
	}
	c.Files = append(c.Files, name)
	seq := s.NextSeq
	s.NextSeq++
	for _, t := range chunk.Tracks {
		src := c.source(t.IsVideo)
		if r := src.DTSRange(); r.Valid() && t.DTS > r.Max {
			s.owner.CollapseGap(Range(r.Max, t.DTS))
		}
		src.Chunks = append(src.Chunks, Chunk{Name: name, Seq: seq, DTS: t.DTS, Duration: t.Duration})
	}
}

// firstMedia returns the range of the oldest clip that still holds media.
func (s *Sequence) firstMedia() TimeRange {
	for _, c := range s.Clips {
		if !c.IsEmpty() {
			return c.DTSRange()
		}
	}
	return TimeRange{}
}

// restoreNextSeq keeps NextSeq ahead of every ordinal held, for logs written
// before ordinals were persisted.
func (s *Sequence) restoreNextSeq() {
	for _, c := range s.Clips {
		for _, src := range c.Sources {
			for _, ch := range src.Chunks {
				if ch.Seq >= s.NextSeq {
					s.NextSeq = ch.Seq + 1
				}
			}
		}
	}
}

func (s *Sequence) trimBefore(edge int64) int {
	n := 0
	for _, c := range s.Clips {
		n += c.trimBefore(edge)
	}
	return n
}

// Validate checks the clip-level invariants of the flavor.
func (s *Sequence) Validate() error {
	for i, c := range s.Clips {
		if c.time == nil {
			return fmt.Errorf("flavor %s clip %d: not bound to a slot", s.ID, i)
		}
		for _, src := range c.Sources {
			for j, ch := range src.Chunks {
				if ch.Duration < 0 {
					return fmt.Errorf("flavor %s clip %d chunk %s: negative duration %d", s.ID, i, ch.Name, ch.Duration)
				}
				if j > 0 && ch.DTS < src.Chunks[j-1].DTS {
					return fmt.Errorf("flavor %s clip %d chunk %s: dts %d goes backwards", s.ID, i, ch.Name, ch.DTS)
				}
			}
		}
	}
	return nil
}
