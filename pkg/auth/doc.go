// Package auth provides the authorization hook evaluated once per relay
// connection when its hello frame arrives.
//
// An Authorizer receives the Handshake (connection id, claimed channel,
// optional token, peer address) and answers allow or deny. Returning an
// error signals an internal fault; the relay then rejects with
// "Internal error" and keeps the detail in its own logs.
//
// Stock policies:
//
//   - AllowAll accepts every handshake that claims a channel.
//   - TokenAuthorizer compares the token against a bcrypt hash.
//   - JWTAuthorizer validates an HMAC-signed JWT whose "channel" claim
//     must equal the claimed channel or be "*".
//   - Func adapts a plain function.
package auth
