package window

import "time"

// DefaultDiagnosticsUnit is the unit used when none is given, in ms.
const DefaultDiagnosticsUnit int64 = 10000

// Diagnostics is a read-only snapshot of the window, expressed in units
// counted from the segment base time.
type Diagnostics struct {
	UnitMs            int64               `json:"unitMs"`
	DiscontinuityMode bool                `json:"discontinuityMode"`
	Now               int64               `json:"now"`
	Window            map[string][2]int64 `json:"window"`
	WindowDurationMs  int64               `json:"windowDurationMs"`
	Gaps              [][2]int64          `json:"gaps"`
	// GapsMs and PlaybackWindow are set when the published span is longer
	// than the media it holds.
	GapsMs         int64      `json:"gapsMsec,omitempty"`
	PlaybackWindow *TimeRange `json:"playbackWindow,omitempty"`
}

// Diagnostics reconciles the playlist and describes it. Window["P"] is the
// published extent; the other keys are flavors.
func (p *Playlist) Diagnostics(unit int64, now time.Time) Diagnostics {
	if unit <= 0 {
		unit = DefaultDiagnosticsUnit
	}
	p.Reconcile()

	base := p.state.SegmentBaseTime
	toUnits := func(r TimeRange) [2]int64 {
		return [2]int64{(r.Min - base) / unit, (r.Max - base) / unit}
	}

	total := p.TotalDuration()
	d := Diagnostics{
		UnitMs:            unit,
		DiscontinuityMode: p.state.Discontinuity,
		Now:               (now.UnixMilli() - base) / unit,
		Window:            map[string][2]int64{},
		WindowDurationMs:  total,
		Gaps:              p.gaps.HumanReadable(unit),
	}

	if !p.minMax.Valid() {
		return d
	}
	d.Window["P"] = toUnits(p.minMax)
	for _, s := range p.state.Sequences {
		if len(s.Clips) == 0 {
			continue
		}
		if r := s.Clips[0].DTSRange(); r.Valid() {
			d.Window[s.ID] = toUnits(r)
		}
	}

	if span := p.minMax.Duration(); total > 0 && span > total {
		d.GapsMs = span - total
		pw := p.minMax
		d.PlaybackWindow = &pw
	}
	return d
}
