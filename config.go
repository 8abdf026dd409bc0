package steward

import "time"

// Config holds configuration for a Steward runtime.
type Config struct {
	// DocumentName is the name of the backing document that holds
	// every persisted job state.
	DocumentName string

	// Namespace is the namespace the backing document lives in.
	Namespace string

	// Codec selects the wire format for serialized job states
	// ("json" or "msgpack").
	Codec string

	// Concurrency is the maximum number of playbook runs executing
	// at the same time.
	Concurrency int

	// TickInterval is how often the scheduler checks for due jobs.
	TickInterval time.Duration

	// RunTimeout bounds a single playbook run. Zero means no limit.
	RunTimeout time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration

	// LeaseTTL is how long a leadership lease is valid before it must
	// be renewed. Only used when a cluster elector is configured.
	LeaseTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DocumentName:    "job-states",
		Namespace:       "default",
		Codec:           "json",
		Concurrency:     10,
		TickInterval:    1 * time.Second,
		RunTimeout:      5 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
		LeaseTTL:        15 * time.Second,
	}
}
