// Package session provides Redis-backed session persistence and compact binary session
// encoding for the sign-in, refresh and sign-out flows.
//
// # Binary encoding
//
// Sessions are stored in Redis as a compact, versioned binary record. Decoding
// rejects unknown versions and truncated input instead of guessing.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Session] model. It does NOT
// interpret access tokens, rotate refresh tokens, or enforce authentication policy.
// Those responsibilities belong to the Engine and the refresh package.
//
// # What this package must NOT do
//
//   - Import the root package, jwt, or refresh (no upward imports).
//   - Delete a revoked session before its TTL runs out; revocation is a state, not a removal.
//   - Store plaintext secrets in [Session] fields.
package session
