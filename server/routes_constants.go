package server

// Route path constants
const (
	// Session lifecycle
	RouteSessionCreate  = "/session/create"
	RouteSessionRefresh = "/session/refresh"
	RouteSession        = "/session"

	// Account management
	RouteUsersCreate = "/users/create"
	RouteUser        = "/users/{id}"
	RouteUserDisable = "/users/{id}/disable"
	RouteUserEnable  = "/users/{id}/enable"

	// Key publication and operations
	RouteWellKnownJWKS = "/.well-known/jwks.json"
	RouteHealth        = "/healthz"
	RouteMetrics       = "/metrics"
)

const contentTypeJSON = "application/json; charset=utf-8"
