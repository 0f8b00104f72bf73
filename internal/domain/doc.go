// Package domain defines the core domain types and interfaces.
//
// Readings, slot identities, source link states and the sentinel errors shared across packages.
// No implementation code - just contracts. Interfaces live here so consumers don't import producers.
package domain
