// Package api exposes the task REST endpoints, the static entry page, health
// and metrics routes over a gorilla/mux router wrapped with request id,
// access log, recovery and CORS middleware.
package api
