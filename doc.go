// Package authclient is the client side of the onboarding portal
// authentication: it acquires, validates, persists and invalidates a bearer
// token and the profile it represents.
//
// Session manager:
//   - Manager owns the Unauthenticated, Checking, Authenticated state
//     machine. It persists tokens through a CredentialStore (see the store
//     package) and validates them with a ProfileResolver (GET /auth/me).
//   - Only a server confirmed rejection (401/403) evicts a stored token.
//   - A lookup overtaken by a logout or a newer login is dropped and its
//     caller gets ErrSuperseded.
//     Transient failures keep it and are reported on the event side channel
//     (SessionEvent.Err, Session.Err) instead of a separate state.
//   - Create one Manager per application and hand it to consumers with
//     ContextWithManager or by injection.
//
// Flow controllers:
//   - OpenIDInitiator fetches the authorization URL and redirects.
//   - CallbackHandler processes the redirect back, once per arrival.
//   - LocalSubmitter submits the local login and register forms.
//
// Errors are go-errors values that wrap their sentinel; match them with
// errors.Is or IsInvalidToken, IsTransient and friends, and present them
// with UserMessage.
package authclient
