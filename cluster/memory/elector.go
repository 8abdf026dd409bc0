// Package memory provides an in-process elector for tests and
// single-node deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/steward/cluster"
)

// Compile-time check that Elector implements cluster.Elector.
var _ cluster.Elector = (*Elector)(nil)

// Elector is a process-local leadership lease. A single node talking
// to itself is always able to win.
type Elector struct {
	mu      sync.Mutex
	holder  string
	expires time.Time
}

// New creates an in-memory elector with no holder.
func New() *Elector {
	return &Elector{}
}

// Acquire takes the lease when it is free, expired, or already held by
// the same identity.
func (e *Elector) Acquire(_ context.Context, identity string, ttl time.Duration) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	if e.holder != "" && e.holder != identity && now.Before(e.expires) {
		return false, nil
	}
	e.holder = identity
	e.expires = now.Add(ttl)
	return true, nil
}

// Renew extends the lease when identity is the current holder.
func (e *Elector) Renew(_ context.Context, identity string, ttl time.Duration) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.holder != identity {
		return false, nil
	}
	e.expires = time.Now().Add(ttl)
	return true, nil
}

// Leader returns the current unexpired holder.
func (e *Elector) Leader(_ context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.holder == "" || time.Now().After(e.expires) {
		return "", nil
	}
	return e.holder, nil
}
