// Package scheduler fires playbook runs from persisted job states.
//
// Every scheduled job lives as a [jobstate.JobState] in the backing
// document, so a restarted process resumes exactly where it left off:
// Start lists all states, re-parses their schedules and registers them
// as live entries. Overdue jobs fire on the first tick.
//
// # Scheduling
//
// A [Definition] names a registered playbook and a cron expression
// (standard 5-field cron or descriptors like "@every 30s"):
//
//	err := sched.Schedule(ctx, scheduler.Definition{
//	    JobID:    "nightly-probe",
//	    Playbook: "probe-disk",
//	    Schedule: "0 3 * * *",
//	    Params:   map[string]string{"target": "node-1"},
//	})
//
// Scheduling an existing JobID replaces its entry. A Repeat limit
// removes the job after that many successful runs.
//
// # Execution
//
// Due jobs are submitted to the runner pool; the scheduler observes
// run outcomes through the hook registry and writes ExecCount,
// LastRunAt and NextRunAt back to the store after each run. Failed runs
// are retried per the configured [backoff.Strategy].
//
// # Leadership
//
// With a [cluster.Elector] configured only the elected replica fires
// jobs, so multiple replicas can share one state document without
// double-firing. The store itself stays single-writer either way.
package scheduler
