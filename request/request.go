// Package request defines the minimal view of an inbound HTTP request that
// the authentication core consumes. The surrounding server owns the real
// request object; the core only needs header lookup, the client IP, query
// parameters and a scratch attribute bag.
package request

// Request is the capability handed to authentication providers. Providers
// may write attributes onto the request (authenticated, user_id, user_data)
// for downstream middleware to pick up.
type Request interface {
	Header(name string) string
	ClientIP() string
	QueryParam(name string) string
	Attribute(key string) any
	SetAttribute(key string, value any)
}

// Attribute keys written by providers on successful authentication.
const (
	AttrAuthenticated = "authenticated"
	AttrUserID        = "user_id"
	AttrUserData      = "user_data"
)
