// Package api exposes the task engine over HTTP: admission, inspection,
// stop and remove, the completion hook used by remote processes, and queue
// administration. It translates HTTP concerns to task.Queue and
// task.Dispatcher operations.
package api
