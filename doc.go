// Package userauth authenticates requests for the user service and manages the
// lifecycle of its credentials: bearer access tokens, rotating refresh token
// chains, Redis-backed sessions, two-factor sign-in and password reset.
//
// The public surface is [Engine], built once through [Builder]. Engine methods
// take immutable command values (see types.go) and return typed results; they
// are safe for concurrent use after [Builder.Build].
//
// # Architecture boundaries
//
// userauth owns configuration, the error taxonomy, event severity and metric
// IDs. The transition rules live in internal/flows; Redis records live in
// session/, refresh/ and internal/stores; counters and throttles live in
// internal/limiters. Collaborators that the service supplies (user store,
// mailer, translator, event sink, logger) are injected through the Builder.
//
// # What this package must NOT do
//
//   - Reveal to a caller why a bearer token was rejected. Every token, claim
//     and lookup failure surfaces as [ErrAuthenticationRequired].
//   - Reveal whether an email exists during sign-in or password reset.
//   - Keep process-wide state. Two Engines built from two Builders share
//     nothing but the Redis keyspace they are configured for.
package userauth
