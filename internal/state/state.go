// Package state tracks which documents are enabled for rendering, which
// document the host has focused and whether a render is in flight.
package state

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

var ErrNoActiveDocument = errors.New("state: no active document")

// Status is the externally visible render state.
type Status string

const (
	StatusDisabled Status = "disabled"
	StatusIdle     Status = "idle"
	StatusActive   Status = "active"
)

// Manager is safe for concurrent use. Listeners run on the goroutine that
// caused the status change, after the manager lock is released.
type Manager struct {
	mu        sync.Mutex
	enabled   map[int]bool
	active    int
	hasActive bool
	rendering int
	last      Status

	subs    map[uint64]func(Status)
	nextSub uint64
}

func NewManager() *Manager {
	return &Manager{
		enabled: make(map[int]bool),
		last:    StatusDisabled,
		subs:    make(map[uint64]func(Status)),
	}
}

// Activate enables rendering for document id.
func (m *Manager) Activate(id int) {
	m.update(func() {
		m.enabled[id] = true
		log.Debug().Int("document", id).Msg("state.Activate")
	})
}

// Deactivate disables rendering for document id.
func (m *Manager) Deactivate(id int) {
	m.update(func() {
		delete(m.enabled, id)
		log.Debug().Int("document", id).Msg("state.Deactivate")
	})
}

// ActivateActive enables the focused document.
func (m *Manager) ActivateActive() error {
	id, ok := m.ActiveDocument()
	if !ok {
		return ErrNoActiveDocument
	}
	m.Activate(id)
	return nil
}

// DeactivateActive disables the focused document.
func (m *Manager) DeactivateActive() error {
	id, ok := m.ActiveDocument()
	if !ok {
		return ErrNoActiveDocument
	}
	m.Deactivate(id)
	return nil
}

func (m *Manager) SetActiveDocument(id int) {
	m.update(func() {
		m.active = id
		m.hasActive = true
	})
}

// Forget drops everything known about document id.
func (m *Manager) Forget(id int) {
	m.update(func() {
		delete(m.enabled, id)
		if m.hasActive && m.active == id {
			m.active = 0
			m.hasActive = false
		}
	})
}

func (m *Manager) ActiveDocument() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active, m.hasActive
}

// Enabled reports whether the focused document is enabled.
func (m *Manager) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabledLocked()
}

func (m *Manager) IsEnabled(id int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled[id]
}

// RenderStarted and RenderFinished bracket one render pass. They nest.
func (m *Manager) RenderStarted() {
	m.update(func() { m.rendering++ })
}

func (m *Manager) RenderFinished() {
	m.update(func() {
		if m.rendering > 0 {
			m.rendering--
		}
	})
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

// Subscribe registers fn for status transitions. The returned func removes it.
func (m *Manager) Subscribe(fn func(Status)) func() {
	m.mu.Lock()
	m.nextSub++
	id := m.nextSub
	m.subs[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

func (m *Manager) enabledLocked() bool {
	return m.hasActive && m.enabled[m.active]
}

func (m *Manager) statusLocked() Status {
	switch {
	case !m.enabledLocked():
		return StatusDisabled
	case m.rendering > 0:
		return StatusActive
	default:
		return StatusIdle
	}
}

// update runs mutate under the lock and notifies listeners if the status
// moved.
func (m *Manager) update(mutate func()) {
	m.mu.Lock()
	mutate()
	next := m.statusLocked()
	if next == m.last {
		m.mu.Unlock()
		return
	}
	prev := m.last
	m.last = next
	subs := make([]func(Status), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	log.Info().Str("from", string(prev)).Str("to", string(next)).Msg("state status changed")
	for _, fn := range subs {
		fn(next)
	}
}
