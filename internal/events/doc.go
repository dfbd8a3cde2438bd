// Package events defines the dispatch envelope that workers publish to the
// external broker when they hand work off to remote processes.
//
// The primary components are:
// - Envelope: the versioned JSON message with a type discriminator
// - Registry: maps type tags to payload variants for decoding
// - Gateway: builds, encodes and publishes envelopes on a named subject
// - Bus: an in-process Publisher used in local mode and tests
package events
