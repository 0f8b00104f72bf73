// Package broadcast fans the snapshot out to websocket subscribers using the actor pattern.
//
// The Broadcaster encodes the whole snapshot once per tick and queues the same bytes to every
// subscriber. A single goroutine owns the subscriber set and processes commands from a channel,
// so no mutex guards it. Per-connection writer goroutines absorb slow subscribers: a full buffer
// drops that tick's frame for that subscriber only.
package broadcast
