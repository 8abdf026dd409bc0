package scheduler

// Definition describes a job to schedule.
type Definition struct {
	// JobID is the unique identifier for the job. Scheduling an
	// existing JobID replaces the previous entry.
	JobID string

	// Playbook is the name of the registered playbook to run.
	Playbook string

	// Schedule is a cron expression (e.g., "*/5 * * * *" or "@every 30s").
	Schedule string

	// Repeat limits how many successful runs the job gets. Zero means
	// unlimited; the job's state is deleted once the budget is spent.
	Repeat int

	// Params are passed to every run of the job.
	Params map[string]string

	// RunImmediately fires the first run on the next tick instead of
	// waiting for the schedule.
	RunImmediately bool
}
