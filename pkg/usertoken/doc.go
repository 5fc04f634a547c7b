// Package usertoken mints and verifies short-lived principal tokens. A
// token certifies that the named principal authenticated against this
// service at issue time; downstream services verify it with the shared
// secret instead of re-authenticating.
//
// The format is compact and self-contained: a base64url JSON claims
// segment followed by a truncated HMAC-SHA256 signature. Tokens carry
// their own expiry and a key version so secrets can rotate without
// invalidating tokens minted under the previous version.
//
//	issuer := usertoken.NewIssuer(map[string]string{"v1": secret}, "v1")
//	tok, err := issuer.Mint("user.jane")
//	claims, err := issuer.Parse(tok)
package usertoken
