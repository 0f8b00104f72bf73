// Package source supervises the outbound websocket link to one weighing device.
//
// A Supervisor owns exactly one connection and the slot it writes in the snapshot store. It is an
// event-driven state machine: opened, message, closed and errored events move it between
// Disconnected, Connecting and Connected. Every close schedules at most one fixed-delay reconnect
// timer; once the retry policy is exhausted the supervisor parks in PermanentlyStopped and only a
// process restart brings the source back.
package source
