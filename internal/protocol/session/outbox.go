package session

import (
	"sort"
	"sync"
	"time"
)

// PendingResync tracks one snapshot request the host has not answered.
type PendingResync struct {
	DocumentID    int
	Reason        string
	Attempts      int
	RequestedAt   time.Time
	LastAttemptAt time.Time
	DeadlineAt    time.Time
}

// ResyncOutbox stores pending resync requests by document id. Changes for a
// pending document are dropped until its snapshot arrives.
type ResyncOutbox struct {
	mu      sync.RWMutex
	timeout time.Duration
	items   map[int]PendingResync
}

func NewResyncOutbox(timeout time.Duration) *ResyncOutbox {
	return &ResyncOutbox{
		timeout: timeout,
		items:   make(map[int]PendingResync),
	}
}

// Request records a resync for id and reports whether one was already
// pending.
func (o *ResyncOutbox) Request(id int, reason string, now time.Time) (PendingResync, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if item, ok := o.items[id]; ok {
		return item, true
	}
	item := PendingResync{
		DocumentID:  id,
		Reason:      reason,
		RequestedAt: now,
	}
	o.items[id] = item
	return item, false
}

// MarkAttempt notes that a resync frame for id was sent at now.
func (o *ResyncOutbox) MarkAttempt(id int, now time.Time) (PendingResync, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	item, ok := o.items[id]
	if !ok {
		return PendingResync{}, false
	}
	item.Attempts++
	item.LastAttemptAt = now
	item.DeadlineAt = now.Add(o.timeout)
	o.items[id] = item
	return item, true
}

// Resolve clears the request for id, normally when its snapshot arrives.
func (o *ResyncOutbox) Resolve(id int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.items, id)
}

func (o *ResyncOutbox) Pending(id int) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.items[id]
	return ok
}

// Due lists requests never sent, or sent and past their deadline.
func (o *ResyncOutbox) Due(now time.Time) []PendingResync {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var out []PendingResync
	for _, item := range o.items {
		if item.Attempts == 0 || !now.Before(item.DeadlineAt) {
			out = append(out, item)
		}
	}
	sortPending(out)
	return out
}

func (o *ResyncOutbox) List() []PendingResync {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]PendingResync, 0, len(o.items))
	for _, item := range o.items {
		out = append(out, item)
	}
	sortPending(out)
	return out
}

func sortPending(items []PendingResync) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].DocumentID < items[j].DocumentID
	})
}
