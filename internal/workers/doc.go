// Package workers contains the concrete Worker implementations of the three
// task families and the constructors of their registries.
//
// Scanner and import workers hand work to remote processes by publishing a
// dispatch envelope; the remote process reports back through the completion
// hook of the admin API. The curator worker asks a LicenseAdvisor for a
// suggestion before publishing it.
package workers
