// Package index holds the package metadata model and the resolution engine
// that turns a listing request into one of the terminal actions (serve,
// redirect, auth-required, forbidden, not-found). The engine merges locally
// stored metadata with upstream releases according to the configured fallback
// policy and the caller's permissions; translation into HTTP statuses is left
// to the route layer.
package index
