// Package task is the orchestration core of the curation engine. It keeps
// one persistent queue per task kind, claims waiting tasks atomically, runs
// them through named workers resolved from a registry, and records status
// and feedback for every outcome. A Scheduler ticks each Dispatcher on a
// cron expression; at most one task per queue is in progress at a time.
package task
