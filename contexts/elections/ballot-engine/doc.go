// Package ballotengine implements the ballot engine inside the elections
// context.
//
// The module owns the ballot log and the cached per-user vote counters that
// mirror it. State-changing operations (cast, retract, role switches) go
// through a single Dispatcher bound at startup: either in-process against a
// transactional store, or over a message broker using correlated
// request/reply with a timeout. Read-side tallies are served from the same
// store through queries and never mutate state.
package ballotengine
