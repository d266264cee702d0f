// Package window reconciles the independently ingested logs of every flavor
// of a live or VOD playlist into one sliding window of shared slots.
//
// A Playlist is owned by a single caller at a time: it is not safe for
// concurrent use.
package window

import (
	"log/slog"
	"path"
)

// DefaultSegmentBaseTime is Sat, 01 Jan 2000 00:00:00 GMT in milliseconds.
// Every playlist of a deployment counts slots from it so that failover
// between instances yields identical numbering.
const DefaultSegmentBaseTime int64 = 946684800000

// DefaultTimestampTolerance is how far a single flavor's clip may fall short
// of its slot duration, in milliseconds.
const DefaultTimestampTolerance int64 = 100

// Type is the playlist kind.
type Type string

const (
	Live Type = "live"
	VOD  Type = "vod"
)

// Limits bounds the published window.
type Limits struct {
	// ManifestTimeWindow is the target window length in ms; 0 disables
	// trimming and the window length check.
	ManifestTimeWindow int64
	TimestampTolerance int64
}

// Options configures a Playlist.
type Options struct {
	// ID tags every log line of the instance.
	ID     string
	Logger *slog.Logger
	Limits Limits
	// Strict turns internal assertion failures into panics.
	Strict bool
	// NewGapPatcher overrides the default gap tracker.
	NewGapPatcher func(SlotView, *slog.Logger) GapPatcher
}

// TrackInfo describes the media one chunk carries for a single track.
type TrackInfo struct {
	IsVideo  bool  `json:"isVideo"`
	DTS      int64 `json:"dts"`
	Duration int64 `json:"duration"`
}

// ChunkInfo describes a chunk delivered by an ingestion source.
type ChunkInfo struct {
	Flavor        string      `json:"flavor"`
	Path          string      `json:"path"`
	Discontinuity bool        `json:"discontinuity,omitempty"`
	Tracks        []TrackInfo `json:"tracks,omitempty"`
}

// record is the persisted state of a playlist.
type record struct {
	PlaylistType        Type        `json:"playlistType"`
	Discontinuity       bool        `json:"discontinuity"`
	SegmentBaseTime     int64       `json:"segmentBaseTime"`
	PresentationEndTime int64       `json:"presentationEndTime,omitempty"`
	ClipTimes           []*TimeCell `json:"clipTimes"`
	Durations           []int64     `json:"durations"`
	Sequences           []*Sequence `json:"sequences"`
}

// Playlist is the windowed state shared by all flavors of one stream.
type Playlist struct {
	state record

	id     string
	log    *slog.Logger
	limits Limits
	strict bool

	// minMax is the last published window extent.
	minMax  TimeRange
	dropped int
	gaps    GapPatcher
	events  *Broadcaster
}

// New returns an empty live playlist.
func New(opts Options) *Playlist {
	p := newPlaylist(opts)
	p.state = record{
		PlaylistType:    Live,
		Discontinuity:   true,
		SegmentBaseTime: DefaultSegmentBaseTime,
		ClipTimes:       []*TimeCell{},
		Durations:       []int64{},
		Sequences:       []*Sequence{},
	}
	p.log.Info("playlist created")
	return p
}

func newPlaylist(opts Options) *Playlist {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("playlist", opts.ID))

	limits := opts.Limits
	if limits.TimestampTolerance <= 0 {
		limits.TimestampTolerance = DefaultTimestampTolerance
	}

	p := &Playlist{
		id:     opts.ID,
		log:    log,
		limits: limits,
		strict: opts.Strict,
		events: NewBroadcaster(),
	}
	newGaps := opts.NewGapPatcher
	if newGaps == nil {
		newGaps = NewGapTracker
	}
	p.gaps = newGaps(p, log)
	p.events.Subscribe(ListenerFunc(p.handleEvent))
	return p
}

func (p *Playlist) handleEvent(e Event) {
	if e.Type == EventItemDisposed {
		p.events.Unsubscribe(e.Subscriber)
	}
}

// ID returns the instance identifier.
func (p *Playlist) ID() string { return p.id }

// Type returns live or vod.
func (p *Playlist) Type() Type { return p.state.PlaylistType }

// Ended reports whether the stream has been closed with End.
func (p *Playlist) Ended() bool { return p.state.PlaylistType == VOD }

// Discontinuity reports the timing mode.
func (p *Playlist) Discontinuity() bool { return p.state.Discontinuity }

// SegmentBaseTime returns the epoch slots are numbered from.
func (p *Playlist) SegmentBaseTime() int64 { return p.state.SegmentBaseTime }

// SlotCount returns the number of slots.
func (p *Playlist) SlotCount() int { return len(p.state.ClipTimes) }

// Slot returns the start time and duration of slot i.
func (p *Playlist) Slot(i int) (start, duration int64) {
	return p.state.ClipTimes[i].Value(), p.state.Durations[i]
}

// Published returns the last published window extent; it is invalid until
// IsModified has returned true once.
func (p *Playlist) Published() TimeRange { return p.minMax }

// DroppedSlots returns how many slots truncation has released so far.
func (p *Playlist) DroppedSlots() int { return p.dropped }

// TotalDuration returns the sum of all slot durations.
func (p *Playlist) TotalDuration() int64 {
	var d int64
	for _, v := range p.state.Durations {
		d += v
	}
	return d
}

// Flavors returns the flavor ids in registration order.
func (p *Playlist) Flavors() []string {
	ids := make([]string, 0, len(p.state.Sequences))
	for _, s := range p.state.Sequences {
		ids = append(ids, s.ID)
	}
	return ids
}

// Subscribe registers l for playlist events and returns its id.
func (p *Playlist) Subscribe(l Listener) int {
	return p.events.Subscribe(l)
}

// Sequence returns the log of flavor, creating and registering it on first
// reference. It returns nil for an empty flavor.
func (p *Playlist) Sequence(flavor string) *Sequence {
	if flavor == "" {
		p.log.Warn("flavor is empty, cannot retrieve sequence")
		return nil
	}
	for _, s := range p.state.Sequences {
		if s.ID == flavor {
			return s
		}
	}
	p.log.Info("add sequence", slog.String("flavor", flavor))
	s := &Sequence{ID: flavor}
	p.bind(s)
	p.state.Sequences = append(p.state.Sequences, s)
	return s
}

// bind attaches s to this playlist: slot allocation, logging, events, and
// the shared time cells of the slots its clips occupy.
func (p *Playlist) bind(s *Sequence) {
	s.owner = p
	s.log = p.log
	s.sub = p.events.Subscribe(s)
	if len(p.state.ClipTimes) > 0 {
		s.baseTime = p.state.ClipTimes[0].Value()
	}
	for i, c := range s.Clips {
		if i < len(p.state.ClipTimes) {
			c.time = p.state.ClipTimes[i]
		}
	}
}

// InsertChunk files a chunk into its flavor's log. It returns false when the
// chunk is unusable or the flavor already holds a file with the same name.
// Slot times and durations are left to the next reconciliation.
func (p *Playlist) InsertChunk(chunk ChunkInfo) bool {
	defer p.events.Flush()

	seq := p.Sequence(chunk.Flavor)
	if seq == nil {
		return false
	}

	name := path.Base(chunk.Path)
	if chunk.Path == "" || name == "." || name == "/" {
		p.log.Warn("chunk has no file name", slog.String("flavor", chunk.Flavor), slog.String("path", chunk.Path))
		return false
	}
	if seq.CheckFileExists(name) {
		p.log.Debug("duplicate chunk", slog.String("flavor", chunk.Flavor), slog.String("chunk", name))
		return false
	}

	seq.insert(chunk, name)
	return true
}

// CheckFileExists reports whether any flavor holds a chunk named name.
func (p *Playlist) CheckFileExists(name string) bool {
	for _, s := range p.state.Sequences {
		if s.CheckFileExists(name) {
			return true
		}
	}
	return false
}

// CollapseGap records a hole so it is not counted twice.
func (p *Playlist) CollapseGap(r TimeRange) {
	if r.Min < r.Max {
		p.gaps.CollapseGap(r)
	}
}

func (p *Playlist) slotCount() int {
	return len(p.state.ClipTimes)
}

// allocateSlot makes sure slot index exists and returns its time cell. A new
// slot starts where the previous one ends so the window stays ordered until
// its first reconciliation.
func (p *Playlist) allocateSlot(index int) *TimeCell {
	for len(p.state.ClipTimes) <= index {
		start := p.state.SegmentBaseTime
		if n := len(p.state.ClipTimes); n > 0 {
			start = p.state.ClipTimes[n-1].Value() + p.state.Durations[n-1]
		}
		p.state.ClipTimes = append(p.state.ClipTimes, NewTimeCell(start))
		p.state.Durations = append(p.state.Durations, 0)
		p.log.Info("append slot", slog.Int("slot", len(p.state.ClipTimes)-1), slog.Int64("start", start))
	}
	return p.state.ClipTimes[index]
}

// TrimToWindow drops chunks that ended before the live window, letting the
// oldest clips drain so truncation can release their slot. It returns the
// number of chunks removed.
func (p *Playlist) TrimToWindow() int {
	defer p.events.Flush()

	if p.state.PlaylistType != Live || p.limits.ManifestTimeWindow <= 0 {
		return 0
	}
	ext := p.reconcile()
	if !ext.Valid() {
		return 0
	}
	edge := ext.Max - p.limits.ManifestTimeWindow
	n := 0
	for _, s := range p.state.Sequences {
		n += s.trimBefore(edge)
	}
	if n > 0 {
		p.log.Debug("trimmed chunks", slog.Int("chunks", n), slog.Int64("edge", edge))
	}
	return n
}

// End closes the stream: the playlist becomes vod and its presentation ends
// at the current window edge.
func (p *Playlist) End() {
	defer p.events.Flush()

	ext := p.reconcile()
	p.state.PlaylistType = VOD
	if ext.Valid() {
		p.state.PresentationEndTime = ext.Max
	}
	p.log.Info("playlist ended", slog.Int64("presentation_end_time", p.state.PresentationEndTime))
}

// Dispose releases every flavor's event subscription.
func (p *Playlist) Dispose() {
	for _, s := range p.state.Sequences {
		p.events.Emit(Event{Type: EventItemDisposed, Subscriber: s.sub, Flavor: s.ID})
	}
	p.events.Flush()
}

// ClipView is one clip of a flavor as seen by renderers.
type ClipView struct {
	Time   int64
	Chunks []Chunk
}

// Snapshot returns the published part of a flavor: the chunks of its primary
// track (video when present) that overlap the last published extent. Nothing
// is returned before the first publish.
func (p *Playlist) Snapshot(flavor string) ([]ClipView, bool) {
	var seq *Sequence
	for _, s := range p.state.Sequences {
		if s.ID == flavor {
			seq = s
		}
	}
	if seq == nil {
		return nil, false
	}
	if !p.minMax.Valid() {
		return nil, true
	}

	views := make([]ClipView, 0, len(seq.Clips))
	for _, c := range seq.Clips {
		var primary *Source
		for _, s := range c.Sources {
			if s.IsEmpty() {
				continue
			}
			if primary == nil || (s.IsVideo && !primary.IsVideo) {
				primary = s
			}
		}
		if primary == nil {
			continue
		}
		v := ClipView{Time: c.Time()}
		for _, ch := range primary.Chunks {
			if Range(ch.DTS, ch.DTS+ch.Duration).Overlaps(p.minMax) {
				v.Chunks = append(v.Chunks, ch)
			}
		}
		if len(v.Chunks) > 0 {
			views = append(views, v)
		}
	}
	return views, true
}
