package store

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// CachedTable serves reads from memory for a short time-to-live. Writes go
// straight through and drop the cached copy.
type CachedTable struct {
	next  Table
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu       sync.Mutex
	rows     []Row
	loadedAt time.Time
	valid    bool
	gen      uint64
}

// NewCached wraps next; a ttl <= 0 disables caching
func NewCached(next Table, ttl time.Duration) *CachedTable {
	return &CachedTable{next: next, ttl: ttl, now: time.Now}
}

func (c *CachedTable) Read(ctx context.Context) ([]Row, error) {
	if c.ttl <= 0 {
		return c.next.Read(ctx)
	}

	c.mu.Lock()
	if c.valid && c.now().Sub(c.loadedAt) < c.ttl {
		rows := cloneRows(c.rows)
		c.mu.Unlock()
		return rows, nil
	}
	gen := c.gen
	c.mu.Unlock()

	// the shared read ignores cancellation; each caller only stops waiting
	ch := c.group.DoChan("read", func() (any, error) {
		rows, err := c.next.Read(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		// a write landed while we were reading; don't cache the old table
		if c.gen == gen {
			c.rows = cloneRows(rows)
			c.loadedAt = c.now()
			c.valid = true
		}
		c.mu.Unlock()
		return rows, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneRows(res.Val.([]Row)), nil
	}
}

func (c *CachedTable) Write(ctx context.Context, rows []Row) error {
	err := c.next.Write(ctx, rows)
	c.mu.Lock()
	c.valid = false
	c.rows = nil
	c.gen++
	c.mu.Unlock()
	return err
}

// Close closes the wrapped table
func (c *CachedTable) Close() error {
	return Close(c.next)
}

func cloneRows(rows []Row) []Row {
	if rows == nil {
		return nil
	}
	out := make([]Row, len(rows))
	copy(out, rows)
	return out
}
