// Package password hashes and verifies user passwords.
//
// New hashes are Argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Bcrypt hashes carried over from the legacy user table still verify. Both
// weaker Argon2id parameters and any bcrypt hash report [Hasher.NeedsUpgrade]
// so the caller can re-hash after the next successful sign-in.
//
// [Policy] holds the strength rules applied to new passwords. This package
// never stores or logs passwords.
package password
