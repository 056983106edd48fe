// Package auth is an identity and session authority: it registers accounts,
// turns credentials into signed access and refresh tokens, and turns tokens
// back into authenticated identities.
//
// Sessions:
//   - Auther owns login, refresh, logout and session lookup. Tokens are HS256
//     JWTs carrying a purpose claim, so a refresh token is never accepted where
//     an access token is expected. Access and refresh tokens use separate keys.
//   - SessionVerifier validates an access token locally and re-reads its
//     subject from the store on every request. An optional TokenDenylist makes
//     logout and refresh rotation revoke tokens before their natural expiry.
//
// Accounts:
//   - Registration, email verification, resend and password reset are command
//     handlers (XMessage plus XHandler.Execute). Verification tokens are single
//     use, stored as hashes and consumed with one DELETE ... RETURNING.
//   - TwoFactorEngine enrolls TOTP secrets with eight single use backup codes.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter for login, registration,
//     two factor and password reset events. Sinks run best-effort (errors are
//     logged) so you can forward to a database or queue without blocking
//     authentication.
//
// Errors:
//   - Every error leaving the package is a go-errors *Error with a closed
//     Category and a stable TextCode that HTTP handlers render as
//     {"error", "message"}. Sentinels are matched with errors.Is.
package auth
