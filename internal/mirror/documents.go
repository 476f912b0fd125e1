package mirror

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/danmuck/layermirror/internal/document"
	"github.com/danmuck/layermirror/internal/observability"
	"github.com/danmuck/layermirror/internal/protocol"
	"github.com/rs/zerolog/log"
)

var ErrUnknownDocument = errors.New("mirror: unknown document")

const maxClosedDocs = 64

// closedDocs remembers the final count of recently closed documents so a
// re-delivered tail is skipped instead of treated as unknown. Oldest
// entries are evicted first.
type closedDocs struct {
	limit int
	final map[int]int64
	order []int
}

func newClosedDocs(limit int) closedDocs {
	return closedDocs{limit: limit, final: make(map[int]int64)}
}

func (c *closedDocs) add(id int, count int64) {
	if _, ok := c.final[id]; !ok {
		c.order = append(c.order, id)
	}
	c.final[id] = count
	for len(c.order) > c.limit {
		delete(c.final, c.order[0])
		c.order = c.order[1:]
	}
}

func (c *closedDocs) remove(id int) {
	if _, ok := c.final[id]; !ok {
		return
	}
	delete(c.final, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *closedDocs) get(id int) (int64, bool) {
	count, ok := c.final[id]
	return count, ok
}

// HandleSnapshot replaces the document with a fresh build from s. The
// document becomes the active one.
func (s *Service) HandleSnapshot(snap protocol.Snapshot) error {
	d, err := document.New(snap)
	if err != nil {
		return err
	}
	s.watch(d)

	s.mu.Lock()
	_, replaced := s.docs[d.ID()]
	s.docs[d.ID()] = d
	s.closed.remove(d.ID())
	count := len(s.docs)
	s.mu.Unlock()

	observability.SetDocuments(count)
	s.state.SetActiveDocument(d.ID())
	log.Info().
		Int("document", d.ID()).
		Int64("count", d.Count()).
		Int("layers", d.Layers().Len()).
		Bool("replaced", replaced).
		Msg("mirror.HandleSnapshot")
	s.renderIfEnabled(d.ID())
	return nil
}

// HandleChange applies c to its document. A failed change drops the
// document; the caller requests a fresh snapshot.
func (s *Service) HandleChange(c protocol.Change) error {
	started := time.Now()
	s.mu.Lock()
	d, ok := s.docs[c.ID]
	if !ok {
		final, wasClosed := s.closed.get(c.ID)
		s.mu.Unlock()
		if wasClosed && c.Count <= final {
			observability.RecordChange(observability.OutcomeStale, time.Since(started))
			log.Debug().Int("document", c.ID).Int64("count", c.Count).Msg("mirror.HandleChange skipping change for closed document")
			return nil
		}
		observability.RecordChange(observability.OutcomeFailed, time.Since(started))
		if wasClosed {
			return fmt.Errorf("%w: %d change %d after close at %d", document.ErrDocumentClosed, c.ID, c.Count, final)
		}
		return fmt.Errorf("%w: %d", ErrUnknownDocument, c.ID)
	}
	stale := d.IsStale(c)
	err := d.ApplyChange(c)
	if err != nil {
		delete(s.docs, c.ID)
	}
	closed := err == nil && d.Closed()
	if closed {
		delete(s.docs, c.ID)
		s.closed.add(c.ID, d.Count())
	}
	count := len(s.docs)
	s.mu.Unlock()

	switch {
	case err != nil:
		observability.RecordChange(observability.OutcomeFailed, time.Since(started))
		observability.SetDocuments(count)
		log.Error().Err(err).Int("document", c.ID).Int64("count", c.Count).Msg("mirror.HandleChange dropping document")
		return err
	case stale:
		observability.RecordChange(observability.OutcomeStale, time.Since(started))
		return nil
	}
	observability.RecordChange(observability.OutcomeApplied, time.Since(started))

	if closed {
		observability.SetDocuments(count)
		s.state.Forget(c.ID)
		log.Info().Int("document", c.ID).Msg("mirror.HandleChange document closed")
		return nil
	}
	s.state.SetActiveDocument(c.ID)
	s.renderIfEnabled(c.ID)
	return nil
}

// HandleClosed forgets a document the host closed.
func (s *Service) HandleClosed(id int) {
	s.mu.Lock()
	d, ok := s.docs[id]
	if ok {
		s.closed.add(id, d.Count())
	}
	delete(s.docs, id)
	count := len(s.docs)
	s.mu.Unlock()

	s.state.Forget(id)
	observability.SetDocuments(count)
	log.Info().Int("document", id).Bool("known", ok).Msg("mirror.HandleClosed")
}

// DocumentIDs lists mirrored document ids in ascending order.
func (s *Service) DocumentIDs() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (s *Service) DocumentViews() []document.View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]document.View, 0, len(s.docs))
	for _, d := range s.docs {
		out = append(out, d.View())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Service) DocumentView(id int) (document.View, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[id]
	if !ok {
		return document.View{}, false
	}
	return d.View(), true
}

// watch logs field events. Listeners run under s.mu and must not take it.
func (s *Service) watch(d *document.Document) {
	id := d.ID()
	d.Subscribe(func(e document.Event) {
		ev := log.Debug().Int("document", id).Str("kind", string(e.Kind()))
		switch e := e.(type) {
		case document.FileChanged:
			ev = ev.Str("file", e.File).Str("previous", e.Previous)
		case document.BoundsChanged:
			ev = ev.Stringer("bounds", e.Bounds).Stringer("previous", e.Previous)
		case document.SelectionChanged:
			ev = ev.Int("selected", len(e.Selection)).Ints("previous", e.Previous)
		case document.ClosedChanged:
			ev = ev.Bool("closed", e.Closed)
		}
		ev.Msg("mirror document event")
	})
}
