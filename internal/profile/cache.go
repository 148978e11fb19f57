// Package profile keeps the extended profile record of the active identity.
//
// The cache tracks which identity is active (set through Reconcile by the
// session manager) and only ever holds a record keyed by that identity.
// Results of in-flight fetches are committed only if the identity they were
// issued for is still active when they complete.
package profile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ovaphlow/pitchfork/client-core-go/internal/profile/entity"
)

var (
	// ErrNotAuthenticated indicates there is no active identity to load for.
	ErrNotAuthenticated = errors.New("profile: no active identity")
	// ErrIdentityChanged indicates the result arrived after a session switch
	// and was discarded.
	ErrIdentityChanged = errors.New("profile: identity changed while request was in flight")
	// ErrForeignRecord indicates the API returned a record for another user.
	ErrForeignRecord = errors.New("profile: record does not belong to the active identity")
)

// FetchError is a recoverable failure to load the profile. The cache is
// left empty; calling Refresh again is safe.
type FetchError struct {
	UserID string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("profile fetch for %s failed: %v", e.UserID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher is the profile half of the remote API.
type Fetcher interface {
	FetchProfile(ctx context.Context, userID string) (entity.Record, error)
	UpdateProfile(ctx context.Context, userID string, rec entity.Record) (entity.Record, error)
}

// Cache holds at most one profile record, always for the active identity.
type Cache struct {
	fetcher Fetcher
	logger  *zap.SugaredLogger
	group   singleflight.Group

	mu        sync.Mutex
	identity  string
	record    *entity.Record
	attempted map[string]bool
}

func NewCache(f Fetcher, logger *zap.SugaredLogger) *Cache {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Cache{fetcher: f, logger: logger, attempted: map[string]bool{}}
}

// Reconcile aligns the cache with the active identity. Any identity change,
// including to or from anonymous (""), drops the cached record before
// anything else can read or fetch it, and re-arms the automatic fetch so a
// later session of the same identity loads its record again.
func (c *Cache) Reconcile(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity != userID {
		if c.record != nil {
			c.logger.Debugw("profile cache invalidated", "from", c.identity, "to", userID)
		}
		c.identity = userID
		c.record = nil
		clear(c.attempted)
	}
	if c.record != nil && c.record.UserID != c.identity {
		c.logger.Warnw("purging profile record with foreign key", "record_user", c.record.UserID, "active_user", c.identity)
		c.record = nil
	}
}

// Current returns the cached record if it belongs to the active identity.
func (c *Cache) Current() (entity.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.record == nil || c.identity == "" || c.record.UserID != c.identity {
		return entity.Record{}, false
	}
	return *c.record, true
}

// Ensure returns the cached record, fetching it if this session has not
// fetched it yet. After one attempt, only Refresh or Invalidate trigger
// another fetch; ok is false when nothing is cached.
func (c *Cache) Ensure(ctx context.Context) (rec entity.Record, ok bool, err error) {
	c.mu.Lock()
	id := c.identity
	if id == "" {
		c.mu.Unlock()
		return entity.Record{}, false, ErrNotAuthenticated
	}
	if c.record != nil && c.record.UserID == id {
		r := *c.record
		c.mu.Unlock()
		return r, true, nil
	}
	if c.attempted[id] {
		c.mu.Unlock()
		return entity.Record{}, false, nil
	}
	c.attempted[id] = true
	c.mu.Unlock()

	r, err := c.load(ctx, id)
	if err != nil {
		return entity.Record{}, false, err
	}
	return r, true, nil
}

// Refresh fetches the record for the active identity unconditionally.
func (c *Cache) Refresh(ctx context.Context) (entity.Record, error) {
	c.mu.Lock()
	id := c.identity
	if id != "" {
		c.attempted[id] = true
	}
	c.mu.Unlock()
	if id == "" {
		return entity.Record{}, ErrNotAuthenticated
	}
	return c.load(ctx, id)
}

// Invalidate drops the cached record and re-arms the automatic fetch for
// the active identity.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record = nil
	delete(c.attempted, c.identity)
}

// Save validates rec, stores it through the API and commits the result
// under the same identity fence as a fetch. The returned record is the
// committed one, so its UserID is always the identity it was saved for.
func (c *Cache) Save(ctx context.Context, rec entity.Record) (entity.Record, error) {
	c.mu.Lock()
	id := c.identity
	c.mu.Unlock()
	if id == "" {
		return entity.Record{}, ErrNotAuthenticated
	}
	if rec.UserID != "" && rec.UserID != id {
		return entity.Record{}, ErrForeignRecord
	}
	rec.UserID = id
	normalized, err := Normalize(rec)
	if err != nil {
		return entity.Record{}, err
	}
	saved, err := c.fetcher.UpdateProfile(ctx, id, normalized)
	if err != nil {
		return entity.Record{}, fmt.Errorf("update profile: %w", err)
	}
	return c.commit(id, saved)
}

func (c *Cache) load(ctx context.Context, id string) (entity.Record, error) {
	v, err, _ := c.group.Do(id, func() (any, error) {
		return c.fetcher.FetchProfile(ctx, id)
	})
	if err != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.identity != id {
			return entity.Record{}, ErrIdentityChanged
		}
		c.record = nil
		return entity.Record{}, &FetchError{UserID: id, Err: err}
	}
	rec, err := c.commit(id, v.(entity.Record))
	if errors.Is(err, ErrForeignRecord) {
		return entity.Record{}, &FetchError{UserID: id, Err: err}
	}
	return rec, err
}

// commit installs rec if id is still the active identity and returns the
// record as stored.
func (c *Cache) commit(id string, rec entity.Record) (entity.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity != id {
		c.logger.Debugw("discarding stale profile result", "issued_for", id, "active", c.identity)
		return entity.Record{}, ErrIdentityChanged
	}
	if rec.UserID == "" {
		rec.UserID = id
	}
	if rec.UserID != id {
		c.logger.Warnw("discarding foreign profile record", "issued_for", id, "record_user", rec.UserID)
		c.record = nil
		return entity.Record{}, ErrForeignRecord
	}
	c.record = &rec
	return rec, nil
}
