package document

import "github.com/danmuck/layermirror/internal/protocol"

type EventKind string

const (
	EventFile      EventKind = "file"
	EventSelection EventKind = "selection"
	EventBounds    EventKind = "bounds"
	EventClosed    EventKind = "closed"
)

// Event is one field change notification.
type Event interface {
	Kind() EventKind
}

type FileChanged struct {
	File     string
	Previous string
}

// SelectionChanged carries the new selection as a set and the previous
// selection as the id sequence it was set with.
type SelectionChanged struct {
	Selection map[int]bool
	Previous  []int
}

type BoundsChanged struct {
	Bounds   protocol.Bounds
	Previous protocol.Bounds
}

type ClosedChanged struct {
	Closed bool
}

func (FileChanged) Kind() EventKind      { return EventFile }
func (SelectionChanged) Kind() EventKind { return EventSelection }
func (BoundsChanged) Kind() EventKind    { return EventBounds }
func (ClosedChanged) Kind() EventKind    { return EventClosed }

type Listener func(Event)

type subscription struct {
	id   uint64
	kind EventKind
	fn   Listener
}

// Subscribe registers fn for every event kind. The returned func removes it.
func (d *Document) Subscribe(fn Listener) func() {
	return d.SubscribeKind("", fn)
}

// SubscribeKind registers fn for one event kind; an empty kind matches all.
func (d *Document) SubscribeKind(kind EventKind, fn Listener) func() {
	d.nextSub++
	id := d.nextSub
	d.subs = append(d.subs, subscription{id: id, kind: kind, fn: fn})
	return func() {
		for i, s := range d.subs {
			if s.id == id {
				d.subs = append(d.subs[:i:i], d.subs[i+1:]...)
				return
			}
		}
	}
}

func (d *Document) emit(e Event) {
	subs := make([]subscription, len(d.subs))
	copy(subs, d.subs)

	d.dispatching++
	defer func() { d.dispatching-- }()
	for _, s := range subs {
		if s.kind == "" || s.kind == e.Kind() {
			s.fn(e)
		}
	}
}
