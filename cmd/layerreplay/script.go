package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/danmuck/layermirror/internal/document"
	"github.com/danmuck/layermirror/internal/protocol"
	"github.com/goccy/go-yaml"
)

// Script is one recorded session: the snapshot the mirror starts from and
// the changes that follow it.
type Script struct {
	Snapshot protocol.Snapshot
	Changes  []protocol.Change
}

type rawScript struct {
	Snapshot json.RawMessage   `json:"snapshot"`
	Changes  []json.RawMessage `json:"changes"`
}

// ParseScript accepts YAML or JSON. Records go through the same decoders
// as host frames.
func ParseScript(data []byte) (Script, error) {
	js, err := yaml.YAMLToJSON(data)
	if err != nil {
		return Script{}, fmt.Errorf("yaml: %w", err)
	}
	var raw rawScript
	if err := json.Unmarshal(js, &raw); err != nil {
		return Script{}, fmt.Errorf("script: %w", err)
	}
	if len(raw.Snapshot) == 0 || string(raw.Snapshot) == "null" {
		return Script{}, fmt.Errorf("script: missing snapshot")
	}
	snap, err := protocol.DecodeSnapshot(raw.Snapshot)
	if err != nil {
		return Script{}, err
	}
	out := Script{Snapshot: snap}
	for i, rc := range raw.Changes {
		c, err := protocol.DecodeChange(rc)
		if err != nil {
			return Script{}, fmt.Errorf("changes[%d]: %w", i, err)
		}
		out.Changes = append(out.Changes, c)
	}
	return out, nil
}

// replayScript applies the script in order and stops at the first failed
// change. The returned document reflects every change before it.
func replayScript(p *printer, s Script) (*document.Document, error) {
	d, err := document.New(s.Snapshot)
	if err != nil {
		p.failf("snapshot %d rejected: %v", s.Snapshot.ID, err)
		return nil, err
	}
	p.snapshot(d)
	d.Subscribe(p.event)
	for _, c := range s.Changes {
		if err := p.apply(d, c); err != nil {
			return d, fmt.Errorf("change %d: %w", c.Count, err)
		}
	}
	return d, nil
}

// frameReplay is the hostlink handler for recorded frame streams.
type frameReplay struct {
	p    *printer
	docs map[int]*document.Document
}

func newFrameReplay(p *printer) *frameReplay {
	return &frameReplay{p: p, docs: make(map[int]*document.Document)}
}

func (r *frameReplay) HandleSnapshot(s protocol.Snapshot) error {
	d, err := document.New(s)
	if err != nil {
		r.p.failf("snapshot %d rejected: %v", s.ID, err)
		return err
	}
	r.p.snapshot(d)
	d.Subscribe(r.p.event)
	r.docs[d.ID()] = d
	return nil
}

func (r *frameReplay) HandleChange(c protocol.Change) error {
	d, ok := r.docs[c.ID]
	if !ok {
		r.p.failf("change %d for unknown document %d", c.Count, c.ID)
		return fmt.Errorf("unknown document %d", c.ID)
	}
	if err := r.p.apply(d, c); err != nil {
		delete(r.docs, c.ID)
		return err
	}
	return nil
}

func (r *frameReplay) HandleClosed(id int) {
	r.p.warnf("document %d closed", id)
	delete(r.docs, id)
}

func (r *frameReplay) documents() []*document.Document {
	out := make([]*document.Document, 0, len(r.docs))
	for _, d := range r.docs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
