package window

import (
	"log/slog"
	"sort"
)

// GapPatcher keeps track of holes in the published window.
type GapPatcher interface {
	// Update recomputes gap records from the current slots.
	Update()
	// CollapseGap folds r into the gap accounting; a no-op if r is empty.
	CollapseGap(r TimeRange)
	Validate() bool
	// HumanReadable renders the gaps as base-relative ranges in unit ms.
	HumanReadable(unit int64) [][2]int64
}

// SlotView is the read-only slot state a GapPatcher works from.
type SlotView interface {
	SlotCount() int
	Slot(i int) (start, duration int64)
	SegmentBaseTime() int64
}

type gapTracker struct {
	view      SlotView
	log       *slog.Logger
	between   []TimeRange
	collapsed []TimeRange
}

// NewGapTracker returns the default GapPatcher over view.
func NewGapTracker(view SlotView, log *slog.Logger) GapPatcher {
	return &gapTracker{view: view, log: log}
}

func (g *gapTracker) Update() {
	g.between = g.between[:0]
	n := g.view.SlotCount()
	for i := 1; i < n; i++ {
		prevStart, prevDur := g.view.Slot(i - 1)
		start, _ := g.view.Slot(i)
		if end := prevStart + prevDur; end < start {
			g.between = append(g.between, Range(end, start))
		}
	}

	if n == 0 {
		return
	}
	first, _ := g.view.Slot(0)
	kept := g.collapsed[:0]
	for _, r := range g.collapsed {
		if r.Max > first {
			kept = append(kept, r)
		}
	}
	g.collapsed = kept
}

func (g *gapTracker) CollapseGap(r TimeRange) {
	if !r.Valid() || r.Min >= r.Max {
		return
	}
	out := make([]TimeRange, 0, len(g.collapsed)+1)
	for _, c := range g.collapsed {
		if c.Max < r.Min || c.Min > r.Max {
			out = append(out, c)
			continue
		}
		r = r.Union(c)
	}
	out = append(out, r)
	sort.Slice(out, func(i, j int) bool { return out[i].Min < out[j].Min })
	g.collapsed = out
	g.log.Debug("gap collapsed", slog.Int64("from", r.Min), slog.Int64("to", r.Max))
}

func (g *gapTracker) Validate() bool {
	for _, set := range [][]TimeRange{g.between, g.collapsed} {
		for i, r := range set {
			if !r.Valid() || r.Min >= r.Max {
				g.log.Warn("invalid gap", slog.Int64("from", r.Min), slog.Int64("to", r.Max))
				return false
			}
			if i > 0 && set[i-1].Max > r.Min {
				g.log.Warn("overlapping gaps", slog.Int64("prev_to", set[i-1].Max), slog.Int64("from", r.Min))
				return false
			}
		}
	}
	return true
}

func (g *gapTracker) HumanReadable(unit int64) [][2]int64 {
	if unit <= 0 {
		unit = 1
	}
	all := make([]TimeRange, 0, len(g.between)+len(g.collapsed))
	all = append(all, g.between...)
	all = append(all, g.collapsed...)
	sort.Slice(all, func(i, j int) bool { return all[i].Min < all[j].Min })

	base := g.view.SegmentBaseTime()
	out := make([][2]int64, 0, len(all))
	for _, r := range all {
		out = append(out, [2]int64{(r.Min - base) / unit, (r.Max - base) / unit})
	}
	return out
}
