package document

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/danmuck/layermirror/internal/layer"
	"github.com/danmuck/layermirror/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Document is the mirrored state of one host document.
type Document struct {
	id        int
	version   string
	count     int64
	timeStamp float64

	file      string
	bounds    protocol.Bounds
	selection []int
	closed    bool

	resolution        float64
	globalLight       json.RawMessage
	generatorSettings json.RawMessage
	placed            json.RawMessage
	comps             json.RawMessage

	layers *layer.Tree

	subs        []subscription
	nextSub     uint64
	dispatching int
}

// New builds a document and its layer tree from a full snapshot.
func New(s protocol.Snapshot) (*Document, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	tree, err := layer.Build(s.Layers)
	if err != nil {
		return nil, fmt.Errorf("document %d: build layers: %w", s.ID, err)
	}
	d := &Document{
		id:                s.ID,
		version:           s.Version,
		count:             s.Count,
		timeStamp:         s.TimeStamp,
		file:              s.File,
		resolution:        s.Resolution,
		globalLight:       s.GlobalLight,
		generatorSettings: s.GeneratorSettings,
		placed:            s.Placed,
		comps:             s.Comps,
		layers:            tree,
	}
	if b, ok := s.Bounds.Get(); ok {
		d.bounds = b
	}
	if sel, ok := s.Selection.Get(); ok {
		d.selection = dedupe(sel)
	}
	return d, nil
}

func (d *Document) ID() int                            { return d.id }
func (d *Document) Version() string                    { return d.version }
func (d *Document) Count() int64                       { return d.count }
func (d *Document) TimeStamp() float64                 { return d.timeStamp }
func (d *Document) File() string                       { return d.file }
func (d *Document) Bounds() protocol.Bounds            { return d.bounds }
func (d *Document) Closed() bool                       { return d.closed }
func (d *Document) Resolution() float64                { return d.resolution }
func (d *Document) GlobalLight() json.RawMessage       { return d.globalLight }
func (d *Document) GeneratorSettings() json.RawMessage { return d.generatorSettings }
func (d *Document) Placed() json.RawMessage            { return d.placed }
func (d *Document) Comps() json.RawMessage             { return d.comps }

// Layers returns the layer tree. Callers must treat it as read-only.
func (d *Document) Layers() *layer.Tree {
	return d.layers
}

// Selection returns the selected layer ids as a set.
func (d *Document) Selection() map[int]bool {
	return selectionSet(d.selection)
}

// SelectionIDs returns the selected ids in the order the host sent them.
func (d *Document) SelectionIDs() []int {
	return slices.Clone(d.selection)
}

// IsStale reports whether c would be skipped as already applied.
func (d *Document) IsStale(c protocol.Change) bool {
	return c.Count <= d.count
}

// SetFile stores path and emits FileChanged only when it differs.
func (d *Document) SetFile(path string) {
	prev := d.file
	if prev == path {
		return
	}
	d.file = path
	d.emit(FileChanged{File: path, Previous: prev})
}

// SetBounds stores b and emits BoundsChanged with the old rectangle only
// when it differs.
func (d *Document) SetBounds(b protocol.Bounds) {
	prev := d.bounds
	if prev == b {
		return
	}
	d.bounds = b
	d.emit(BoundsChanged{Bounds: b, Previous: prev})
}

// SetSelection compares ids with the current selection position by
// position, so a reordered but otherwise equal selection still emits.
func (d *Document) SetSelection(ids []int) {
	next := dedupe(ids)
	if slices.Equal(d.selection, next) {
		return
	}
	prev := d.selection
	d.selection = next
	d.emit(SelectionChanged{Selection: selectionSet(next), Previous: slices.Clone(prev)})
}

// SetClosed stores the flag and emits ClosedChanged only when it flips.
func (d *Document) SetClosed(closed bool) {
	if d.closed == closed {
		return
	}
	d.closed = closed
	d.emit(ClosedChanged{Closed: closed})
}

// ApplyChange validates c against the document and applies it. Stale
// changes (count not above the current count) are skipped without error.
// Any other failure leaves the document unchanged.
func (d *Document) ApplyChange(c protocol.Change) error {
	if d.dispatching > 0 {
		return fmt.Errorf("%w: document %d change %d", ErrReentrantChange, d.id, c.Count)
	}
	if c.ID != d.id {
		return fmt.Errorf("%w: document id %d, change id %d", ErrProtocolMismatch, d.id, c.ID)
	}
	if c.Version != d.version {
		return fmt.Errorf("%w: document version %q, change version %q", ErrProtocolMismatch, d.version, c.Version)
	}
	if d.IsStale(c) {
		log.Warn().
			Int("document", d.id).
			Int64("count", c.Count).
			Int64("current", d.count).
			Msg("document.ApplyChange skipping out of order change")
		return nil
	}
	if d.closed {
		return fmt.Errorf("%w: document %d change %d", ErrDocumentClosed, d.id, c.Count)
	}
	if c.TimeStamp < d.timeStamp {
		return fmt.Errorf("%w: document %d at %v, change %d at %v",
			ErrTimestampRegression, d.id, d.timeStamp, c.Count, c.TimeStamp)
	}

	var staged *layer.Tree
	if c.HasLayers() {
		staged = d.layers.Clone()
		if err := reconcile(staged, c.Layers); err != nil {
			return fmt.Errorf("document %d change %d: %w", d.id, c.Count, err)
		}
	}

	d.count = c.Count
	d.timeStamp = c.TimeStamp
	if staged != nil {
		d.layers = staged
	}

	if v, ok := c.File.Get(); ok {
		d.SetFile(v)
	}
	if v, ok := c.Selection.Get(); ok {
		d.SetSelection(v)
	}
	if v, ok := c.Bounds.Get(); ok {
		d.SetBounds(v)
	}
	if v, ok := c.Closed.Get(); ok {
		d.SetClosed(v)
	}
	return nil
}

func (d *Document) String() string {
	return fmt.Sprintf("Document %d: %s", d.id, d.layers.String())
}

func dedupe(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func selectionSet(ids []int) map[int]bool {
	out := make(map[int]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}
