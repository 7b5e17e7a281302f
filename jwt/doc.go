// Package jwt issues access tokens and verifies their signatures.
//
// The [Manager] is the signature-verifying decoder used by the token
// verifier: [Manager.Decode] checks the signature and algorithm only and
// hands back the raw claim set, leaving claim validation to the caller.
package jwt
