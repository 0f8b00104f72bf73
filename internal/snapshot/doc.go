// Package snapshot holds the in-memory table of latest readings, one fixed slot per configured source.
//
// Slots are allocated once at construction and never grow or shrink. Each supervisor writes only its own
// slot; the broadcaster, lookup handler and subscriber endpoint only read. A single RWMutex guards the
// table so a reader always sees whole readings.
package snapshot
