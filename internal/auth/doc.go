// Package auth validates the bearer tokens that guard the ops API.
//
// Tokens are HS256 JWTs signed with security.jwt.secret. Each carries a
// subject (the operator or tool calling the API) and a role:
//   - viewer reads devices, health, logs and the audit trail
//   - admin additionally sends commands, syncs users and runs maintenance
//
// Tokens are minted out of band with `accessbridge token`; the bridge keeps
// no user accounts.
package auth
