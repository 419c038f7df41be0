// Package auth issues and validates the bearer tokens guarding the
// watchdog's write surface.
//
// Tokens are HS256 JWTs carrying a subject and a role. Viewers may read
// attributes and fleet state; operators may also write attributes and
// flush the digest. There is no user store: operators mint tokens offline
// with `watchdog --issue-token`.
package auth
