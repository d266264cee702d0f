package window

// TimeRange is a [Min, Max) interval in milliseconds. The zero value is
// invalid and means "no data".
type TimeRange struct {
	Min   int64 `json:"min"`
	Max   int64 `json:"max"`
	valid bool
}

// Range returns a valid range.
func Range(min, max int64) TimeRange {
	return TimeRange{Min: min, Max: max, valid: true}
}

// Valid reports whether r carries data.
func (r TimeRange) Valid() bool {
	return r.valid
}

// Overlaps reports whether r and o share any time.
func (r TimeRange) Overlaps(o TimeRange) bool {
	return r.Min < o.Max && r.Max > o.Min
}

// Union returns the smallest range covering both r and o. An invalid operand
// is ignored.
func (r TimeRange) Union(o TimeRange) TimeRange {
	switch {
	case !o.valid:
		return r
	case !r.valid:
		return o
	}
	if o.Min < r.Min {
		r.Min = o.Min
	}
	if o.Max > r.Max {
		r.Max = o.Max
	}
	return r
}

// Duration returns Max-Min, or 0 for an invalid range.
func (r TimeRange) Duration() int64 {
	if !r.valid {
		return 0
	}
	return r.Max - r.Min
}

// mergeRanges groups ranges that overlap into disjoint clusters and returns the
// cluster reaching furthest in time. Flavors may have independent transient
// holes; the latest cluster is what has actually been ingested up to now.
// Invalid inputs are skipped. The result is invalid when nothing remains.
func mergeRanges(ranges []TimeRange) TimeRange {
	pending := make([]TimeRange, 0, len(ranges))
	for _, r := range ranges {
		if r.valid {
			pending = append(pending, r)
		}
	}

	var best TimeRange
	for len(pending) > 0 {
		cur := pending[0]
		pending = pending[1:]

		// absorb until the grown range touches nothing else
		for {
			rest := pending[:0]
			merged := false
			for _, r := range pending {
				if cur.Overlaps(r) {
					cur = cur.Union(r)
					merged = true
					continue
				}
				rest = append(rest, r)
			}
			pending = rest
			if !merged {
				break
			}
		}

		if !best.valid || cur.Max > best.Max {
			best = cur
		}
	}
	return best
}
