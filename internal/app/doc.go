// Package app composes the running service.
//
// The Engine owns the snapshot store, one source supervisor per configured device and the
// broadcaster. HTTP handlers depend on it through small domain interfaces.
package app
