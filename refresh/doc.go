// Package refresh implements opaque rotating refresh tokens and their
// Redis-backed rotation chains.
//
// # Token format
//
// A token is base64url(16-byte token ID || 32-byte secret). Tokens are never
// stored in plaintext; the store retains only SHA-256(secret).
//
// # Chains
//
// Every token belongs to the chain of the session it was issued for. Redeeming
// a token marks it used and writes its successor in one Lua script, so exactly
// one concurrent redeemer wins; the rest observe "used".
//
// # Deployment
//
// Token IDs carry no session hash tag, so a token and its chain cannot be
// pinned to one cluster slot. The scripts address keys they build from
// arguments, which Redis Cluster rejects; run the store against a single
// primary (optionally with replicas or Sentinel).
//
// # Architecture boundaries
//
// This package owns token encoding, the [Token] record and the [Store].
// Theft policy (what to do when a used or revoked token comes back) is the
// Engine's decision.
//
// # What this package must NOT do
//
//   - Import the root package, jwt, or session.
//   - Store or log plaintext secrets.
package refresh
