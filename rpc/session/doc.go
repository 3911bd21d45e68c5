// Package session provides the session capability of the RPC server: given the
// session token of a request, it exposes the identity of the current user to the
// procedures.
//
// Tokens are HS256 signed JWTs (subject = user id, jti = session id). The Manager
// issues and verifies them, Provide resolves the session from the forwarded request
// headers ("authorization: Bearer <token>" or the "session-token" cookie) and stores it
// in the call context, where procedures read it with FromContext.
package session
