// Package userstore is the PostgreSQL implementation of userauth.UserProvider.
//
// Accounts live in the users table; recovery code hashes live in
// recovery_codes, one row per unused code. The schema ships as embedded
// golang-migrate files applied with [Migrate].
//
// # What this package must NOT do
//
//   - Store recovery codes or reset tokens in plaintext.
//   - Report a missing account with anything but userauth.ErrUserNotFound or
//     userauth.ErrUserByEmailNotFound.
package userstore
