package window

// Chunk is one media file's contribution to a single track. Seq is the
// ordinal of the file within its flavor; every track of one file shares it
// and it survives trimming, so it can number media segments.
type Chunk struct {
	Name     string `json:"name"`
	Seq      int64  `json:"seq"`
	DTS      int64  `json:"dts"`
	Duration int64  `json:"duration"`
}

// Source is one track (video or audio) of a clip.
type Source struct {
	IsVideo bool    `json:"isVideo"`
	Chunks  []Chunk `json:"chunks"`
}

// IsEmpty reports whether the source holds no media.
func (s *Source) IsEmpty() bool {
	return len(s.Chunks) == 0
}

// DTSRange returns the presentation interval covered by the source.
func (s *Source) DTSRange() TimeRange {
	if s.IsEmpty() {
		return TimeRange{}
	}
	last := s.Chunks[len(s.Chunks)-1]
	return Range(s.Chunks[0].DTS, last.DTS+last.Duration)
}

// Duration returns the media actually held, holes excluded.
func (s *Source) Duration() int64 {
	var d int64
	for _, c := range s.Chunks {
		d += c.Duration
	}
	return d
}

// Offset returns the source start relative to base.
func (s *Source) Offset(base int64) int64 {
	if s.IsEmpty() {
		return 0
	}
	return s.Chunks[0].DTS - base
}

func (s *Source) trimBefore(edge int64) int {
	n := 0
	for n < len(s.Chunks) && s.Chunks[n].DTS+s.Chunks[n].Duration <= edge {
		n++
	}
	if n > 0 {
		s.Chunks = append(s.Chunks[:0:0], s.Chunks[n:]...)
	}
	return n
}

// SourceOffset is a track start relative to its slot time.
type SourceOffset struct {
	IsVideo bool
	Offset  int64
}

// Clip is the part of one flavor's log that lives in one slot. Its start time
// is the slot's shared TimeCell.
type Clip struct {
	Files   []string  `json:"files"`
	Sources []*Source `json:"sources"`

	time *TimeCell
}

func newClip(cell *TimeCell) *Clip {
	return &Clip{time: cell}
}

// Time returns the start time of the slot the clip is aligned to.
func (c *Clip) Time() int64 {
	return c.time.Value()
}

// IsEmpty reports whether no source holds media. A clip whose chunks were all
// trimmed, or which was opened as a placeholder, is empty.
func (c *Clip) IsEmpty() bool {
	for _, s := range c.Sources {
		if !s.IsEmpty() {
			return false
		}
	}
	return true
}

// DTSRange returns the union of the source ranges.
func (c *Clip) DTSRange() TimeRange {
	var r TimeRange
	for _, s := range c.Sources {
		r = r.Union(s.DTSRange())
	}
	return r
}

// TotalDuration returns the longest track duration.
func (c *Clip) TotalDuration() int64 {
	var d int64
	for _, s := range c.Sources {
		if sd := s.Duration(); sd > d {
			d = sd
		}
	}
	return d
}

// Offsets returns the offsets of the non-empty sources in order.
func (c *Clip) Offsets() []SourceOffset {
	out := make([]SourceOffset, 0, len(c.Sources))
	for _, s := range c.Sources {
		if s.IsEmpty() {
			continue
		}
		out = append(out, SourceOffset{IsVideo: s.IsVideo, Offset: s.Offset(c.Time())})
	}
	return out
}

func (c *Clip) hasFile(name string) bool {
	for _, f := range c.Files {
		if f == name {
			return true
		}
	}
	return false
}

// source returns the first track of the given kind, creating it if needed.
func (c *Clip) source(video bool) *Source {
	for _, s := range c.Sources {
		if s.IsVideo == video {
			return s
		}
	}
	s := &Source{IsVideo: video}
	c.Sources = append(c.Sources, s)
	return s
}

func (c *Clip) trimBefore(edge int64) int {
	n := 0
	for _, s := range c.Sources {
		n += s.trimBefore(edge)
	}
	return n
}
