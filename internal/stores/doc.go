// Package stores provides Redis-backed, short-lived record stores for
// security-sensitive authentication flows: pending two-factor sessions and
// password reset tokens.
//
// # Design
//
// Each store persists a versioned, binary-encoded record in Redis with a TTL.
// Mutation operations (Issue, Consume, RecordFailure) use WATCH/MULTI optimistic
// transactions with automatic retry on contention.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for transient
// records. It does NOT generate codes, enforce rate limits, or make
// authentication decisions; those belong to the flow functions in internal/flows.
//
// # What this package must NOT do
//
//   - Import the root package or any sibling internal package.
//   - Log record contents.
package stores
