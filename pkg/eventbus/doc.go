// Package eventbus provides decoupled, many-to-many signaling between
// modules that hold no references to each other.
//
// Handlers subscribe to an exact event name or to a wildcard pattern where
// "*" stands for exactly one ':'-delimited segment ("user:*" matches
// "user:login" but not "user:login:ok"); a bare "*" receives everything.
//
// Publish resolves every matching pattern, orders the merged handlers by
// priority (stable on ties) and runs them one after another. A failing
// handler is logged and recorded in its Result; the rest still run.
//
// Every publish is kept in a bounded history that late subscribers can
// inspect with History or re-deliver with Replay.
package eventbus
