// Package middleware adapts userauth.Engine authentication to net/http.
//
// # Guards
//
//   - [Guard]: extracts the bearer token, authenticates it and stores the
//     resolved [userauth.Identity] in the request context.
//   - [RequireUser]: Guard that only admits end users.
//   - [RequireService]: Guard that only admits service principals.
//
// Tokens are read from the Authorization header first and then from the
// host-locked access token cookie. A request that carries neither is not a
// failure: it is handed to the configured fallback handler when one is set.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to the Engine).
//   - Access Redis.
//   - Tell the client why a token was rejected.
package middleware
