package steward

import "errors"

var (
	// Document errors.
	ErrDocumentNotFound = errors.New("steward: document not found")
	ErrDocumentExists   = errors.New("steward: document already exists")

	// State errors.
	ErrStateCorrupt  = errors.New("steward: job state corrupt")
	ErrStateNotFound = errors.New("steward: job state not found")

	// Store errors.
	ErrNoStore     = errors.New("steward: no document store configured")
	ErrStoreClosed = errors.New("steward: document store closed")

	// Scheduling errors.
	ErrJobNotFound     = errors.New("steward: scheduled job not found")
	ErrInvalidSchedule = errors.New("steward: invalid schedule expression")

	// Playbook errors.
	ErrPlaybookNotFound  = errors.New("steward: playbook not found")
	ErrDuplicatePlaybook = errors.New("steward: duplicate playbook")
	ErrConditionFailed   = errors.New("steward: playbook condition rejected run")

	// Runner errors.
	ErrPoolStopped = errors.New("steward: runner pool stopped")

	// Relay errors.
	ErrUnauthorized     = errors.New("steward: relay authentication failed")
	ErrConnectionClosed = errors.New("steward: relay connection closed")

	// Archive errors.
	ErrSnapshotNotFound = errors.New("steward: snapshot not found")
	ErrNoArchive        = errors.New("steward: no archive backend configured")

	// Cluster errors.
	ErrNotLeader = errors.New("steward: not the leader")
)
