// Package identityservice resolves caller identity for the polling core:
// account signup, login, and bearer-token authentication yielding
// (user id, role) for the HTTP layer.
package identityservice
