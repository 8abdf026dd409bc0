// Package cluster provides leader election so that exactly one replica
// drives the scheduler tick loop. The job-state store itself has no
// cross-process guard; leadership is the process-level mitigation for
// running multiple replicas against the same document.
package cluster

import (
	"context"
	"time"
)

// Elector grants and tracks a single-holder leadership lease.
//
// Identity is an opaque string, typically the worker ID. All methods
// are safe for concurrent use.
type Elector interface {
	// Acquire attempts to take leadership for the given identity.
	// It returns true when the identity now holds the lease, false
	// when another holder has an unexpired lease.
	Acquire(ctx context.Context, identity string, ttl time.Duration) (bool, error)

	// Renew extends the lease held by identity. It returns false
	// without error when identity is not the current holder.
	Renew(ctx context.Context, identity string, ttl time.Duration) (bool, error)

	// Leader returns the identity of the current unexpired holder,
	// or the empty string when there is no leader.
	Leader(ctx context.Context) (string, error)
}
