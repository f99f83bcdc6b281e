// Package sinks implements progress consumers: Prometheus collectors, a
// structured log stream, and an in-memory tracker backing the HTTP progress
// endpoint.
package sinks
