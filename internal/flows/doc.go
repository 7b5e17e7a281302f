// Package flows contains the transition rules behind every Engine operation.
//
// Each Run* function takes a typed dependency struct and returns a result or
// an error drawn from the injected [Errors] set. Flows hold no state between
// calls; sessions, refresh chains, pending two-factor sessions, reset tokens
// and counters live behind the store interfaces declared in deps.go.
//
// # What this package must NOT do
//
//   - Import the root package (the Engine builds the dependency structs).
//   - Talk to Redis or the user database except through those interfaces.
//   - Decide event severity or metric export; it only names events and
//     increments metric IDs.
package flows
