// Package postgres provides the PostgreSQL implementation of task.TaskStore
// and the embedded goose migrations that create its schema.
//
// Tasks live in the tasks table with their feedback trail as a JSONB array
// that is only ever appended to. Configuration entries live in
// task_configuration and are removed with their task by cascade.
package postgres
