package jobstate

import "time"

// JobState is the persisted state of one scheduled job. It is the value
// stored under the job's identifier in the backing document; the store
// serializes it with the configured codec and otherwise treats it as
// opaque.
type JobState struct {
	// JobID is the unique identifier of the scheduled job. It is the
	// key the state is stored under.
	JobID string `json:"job_id" msgpack:"job_id"`

	// Playbook names the registered playbook the job runs.
	Playbook string `json:"playbook" msgpack:"playbook"`

	// Schedule is the job's cron expression ("*/5 * * * *" or
	// "@every 30s"). The store does not parse it.
	Schedule string `json:"schedule,omitempty" msgpack:"schedule,omitempty"`

	// Repeat is the remaining run budget. Zero means unlimited.
	Repeat int `json:"repeat,omitempty" msgpack:"repeat,omitempty"`

	// Params are the job-specific parameters passed to each run.
	Params map[string]string `json:"params,omitempty" msgpack:"params,omitempty"`

	// ExecCount is how many times the job has run so far.
	ExecCount int `json:"exec_count" msgpack:"exec_count"`

	// LastRunAt is when the job last ran, nil before the first run.
	LastRunAt *time.Time `json:"last_run_at,omitempty" msgpack:"last_run_at,omitempty"`

	// NextRunAt is when the job is next due.
	NextRunAt *time.Time `json:"next_run_at,omitempty" msgpack:"next_run_at,omitempty"`
}

// Clone returns a deep copy of the state.
func (s *JobState) Clone() *JobState {
	cp := *s
	if s.Params != nil {
		cp.Params = make(map[string]string, len(s.Params))
		for k, v := range s.Params {
			cp.Params[k] = v
		}
	}
	if s.LastRunAt != nil {
		t := *s.LastRunAt
		cp.LastRunAt = &t
	}
	if s.NextRunAt != nil {
		t := *s.NextRunAt
		cp.NextRunAt = &t
	}
	return &cp
}
