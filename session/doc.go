// Package session implements the server-held session record and its Redis
// store. Sessions are referenced by an opaque random ID; no token handed to
// a client carries claims or secret material.
package session
