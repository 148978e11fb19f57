// Package notify holds the in-memory, session-scoped notification queue.
package notify

import (
	"errors"
	"sync"
	"time"

	"github.com/ovaphlow/pitchfork/client-core-go/internal/notify/entity"
	"github.com/ovaphlow/pitchfork/client-core-go/pkg/utilities"
)

// ErrNotFound indicates no entry has the requested id.
var ErrNotFound = errors.New("notification not found")

// Center is a newest-first queue of user-facing notifications.
type Center struct {
	clock func() time.Time
	newID func() string

	mu      sync.Mutex
	entries []entity.Entry
}

// NewCenter constructs an empty queue. nil clock/newID use time.Now and KSUIDs.
func NewCenter(clock func() time.Time, newID func() string) *Center {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = utilities.NewKSUID
	}
	return &Center{clock: clock, newID: newID}
}

// Push prepends e. Missing id and timestamp are filled in; Read is always
// reset since a new entry has not been seen.
func (c *Center) Push(e entity.Entry) entity.Entry {
	if e.ID == "" {
		e.ID = c.newID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = c.clock().UTC()
	}
	if e.Type == "" {
		e.Type = entity.TypeInfo
	}
	e.Read = false

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append([]entity.Entry{e}, c.entries...)
	return e
}

// MarkRead flags one entry as read. Marking an already-read entry is a no-op.
func (c *Center) MarkRead(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.entries {
		if c.entries[i].ID == id {
			c.entries[i].Read = true
			return nil
		}
	}
	return ErrNotFound
}

// MarkAllRead flags every entry as read.
func (c *Center) MarkAllRead() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.entries {
		c.entries[i].Read = true
	}
}

// UnreadCount returns the number of unread entries.
func (c *Center) UnreadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		if !e.Read {
			n++
		}
	}
	return n
}

// List returns a copy of the queue, newest first.
func (c *Center) List() []entity.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]entity.Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Clear drops every entry. Called when the session ends.
func (c *Center) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
}
