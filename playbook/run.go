package playbook

import (
	"sync"
	"time"

	"github.com/xraph/steward/id"
)

// Run is one execution of a playbook. It carries the run identity and
// parameters in, and accumulates findings on the way out. A Run is safe
// for concurrent use by the playbook function's own goroutines.
type Run struct {
	// ID uniquely identifies this execution.
	ID id.ID

	// JobID is the scheduled job that fired the run, empty for
	// ad-hoc triggers.
	JobID string

	// Playbook is the name of the playbook being executed.
	Playbook string

	// Params are the run parameters.
	Params map[string]string

	// StartedAt is when the run began.
	StartedAt time.Time

	mu       sync.Mutex
	findings []*Finding
}

// NewRun creates a Run for the named playbook with a fresh run ID.
func NewRun(playbook, jobID string, params map[string]string) *Run {
	return &Run{
		ID:        id.New(id.PrefixRun),
		JobID:     jobID,
		Playbook:  playbook,
		Params:    params,
		StartedAt: time.Now().UTC(),
	}
}

// AddFinding records a finding on the run. The finding's Source and
// CreatedAt are filled in when empty.
func (r *Run) AddFinding(f *Finding) {
	if f.Source == "" {
		f.Source = r.JobID
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	r.findings = append(r.findings, f)
	r.mu.Unlock()
}

// Findings returns a snapshot of the findings recorded so far.
func (r *Run) Findings() []*Finding {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Finding, len(r.findings))
	copy(out, r.findings)
	return out
}
