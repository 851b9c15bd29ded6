// Package executor runs a task graph on a pool of workers.
//
// A node becomes ready once every dependency has finished as EXECUTED or
// UP-TO-DATE. The first failure cancels the run context and marks every
// transitive dependent SKIPPED, so the reported error is always the root
// cause. There are no retries.
package executor
