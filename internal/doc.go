// Package internal groups the packages that are private to the auth engine.
//
// # Sub-packages
//
//   - audit: event dispatch (Dispatcher and Sink implementations)
//   - flows: pure-function orchestrators for every Engine operation
//   - limiters: sign-in lockout, two-factor and password-reset throttles
//   - rate: Redis counter and sliding-window primitives
//   - stores: pending two-factor sessions and password reset records
//
// # What this package must NOT do
//
//   - Export types that appear in the public userauth API.
//   - Be imported by any package outside this module.
package internal
