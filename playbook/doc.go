// Package playbook defines the action model for steward: named Go
// functions that run when a scheduled job fires or a trigger arrives.
//
// A [Definition] pairs a name with a run function and an optional
// condition expression evaluated against the run's parameters. The
// [Registry] holds all known playbooks; a [Run] carries one execution's
// identity, parameters and accumulated [Finding] output for the sinks.
package playbook
