package window

import (
	"encoding/json"
	"strconv"
)

// TimeCell is a millisecond timestamp shared by pointer between a playlist
// slot and every clip aligned to that slot. Setting it once is visible to all
// holders.
type TimeCell struct {
	v int64
}

// NewTimeCell returns a cell holding v.
func NewTimeCell(v int64) *TimeCell {
	return &TimeCell{v: v}
}

// Value returns the current time.
func (c *TimeCell) Value() int64 {
	if c == nil {
		return 0
	}
	return c.v
}

// Set stores v and reports whether the value changed.
func (c *TimeCell) Set(v int64) bool {
	if c.v == v {
		return false
	}
	c.v = v
	return true
}

func (c *TimeCell) String() string {
	return strconv.FormatInt(c.Value(), 10)
}

// MarshalJSON encodes the cell as a bare integer.
func (c *TimeCell) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Value())
}

// UnmarshalJSON decodes a bare integer.
func (c *TimeCell) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &c.v)
}
