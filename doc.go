// Package auth is the account access layer: password login, session tokens,
// the route access gate, invitations and account lifecycle.
//
// Sessions:
//   - Auther.Login verifies an email and password against the stored bcrypt
//     hash and mints an HS256 token with a seven day lifetime. Every failure
//     is reported as ErrInvalidCredentials.
//   - RouteAuthenticator.Protected validates the token, reloads the account
//     and rejects anything that is not ACTIVE, so suspending an account takes
//     effect on the next request. Optional never rejects.
//
// Invitations:
//   - InvitationManager issues single use, time boxed invitations and redeems
//     them. Redemption flips PENDING to ACCEPTED with a conditional update so
//     only one concurrent accept can win.
//
// Activity sinks:
//   - ActivitySink receives audit events for logins, invitations, profile and
//     status changes. Sinks run best effort: errors are logged and never fail
//     the operation that produced the event.
//
// SAML single sign-on lives in the federation package.
package auth
