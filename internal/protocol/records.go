package protocol

import (
	"encoding/json"
	"fmt"
)

// Bounds is a rectangle in document pixel space.
type Bounds struct {
	Top    int `json:"top"`
	Left   int `json:"left"`
	Bottom int `json:"bottom"`
	Right  int `json:"right"`
}

func (b Bounds) Width() int {
	return b.Right - b.Left
}

func (b Bounds) Height() int {
	return b.Bottom - b.Top
}

func (b Bounds) String() string {
	return fmt.Sprintf("[%d,%d,%d,%d]", b.Top, b.Left, b.Bottom, b.Right)
}

// RawLayer is one layer record, used both for snapshot layers and for
// incremental layer changes. Nested Layers describe the record's children.
type RawLayer struct {
	ID      int         `json:"id"`
	Index   Opt[int]    `json:"index,omitzero"`
	Type    string      `json:"type,omitempty"`
	Name    Opt[string] `json:"name,omitzero"`
	Bounds  Opt[Bounds] `json:"bounds,omitzero"`
	Visible Opt[bool]   `json:"visible,omitzero"`
	Added   bool        `json:"added,omitempty"`
	Removed bool        `json:"removed,omitempty"`
	Layers  []RawLayer  `json:"layers,omitempty"`
}

// Actionable reports whether the record changes its own position or
// existence. Non-actionable records may still carry nested changes.
func (r RawLayer) Actionable() bool {
	return r.Index.Set || r.Removed
}

// Snapshot is the full document state the mirror is built from.
type Snapshot struct {
	ID                int             `json:"id"`
	Version           string          `json:"version"`
	Count             int64           `json:"count"`
	TimeStamp         float64         `json:"timeStamp"`
	File              string          `json:"file,omitempty"`
	Bounds            Opt[Bounds]     `json:"bounds,omitzero"`
	Selection         Opt[[]int]      `json:"selection,omitzero"`
	Resolution        float64         `json:"resolution,omitempty"`
	GlobalLight       json.RawMessage `json:"globalLight,omitempty"`
	GeneratorSettings json.RawMessage `json:"generatorSettings,omitempty"`
	Placed            json.RawMessage `json:"placed,omitempty"`
	Comps             json.RawMessage `json:"comps,omitempty"`
	Layers            []RawLayer      `json:"layers,omitempty"`
}

// Change is one incremental change record emitted by the host.
type Change struct {
	ID        int         `json:"id"`
	Version   string      `json:"version"`
	Count     int64       `json:"count"`
	TimeStamp float64     `json:"timeStamp"`
	File      Opt[string] `json:"file,omitzero"`
	Selection Opt[[]int]  `json:"selection,omitzero"`
	Bounds    Opt[Bounds] `json:"bounds,omitzero"`
	Closed    Opt[bool]   `json:"closed,omitzero"`
	Layers    []RawLayer  `json:"layers,omitempty"`
}

// HasLayers reports whether the record carries a structural delta.
func (c Change) HasLayers() bool {
	return c.Layers != nil
}
