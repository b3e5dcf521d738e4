// Package server hosts the podcast API on a chi router.
//
// Every request passes through request id assignment, request and audit
// logging, Prometheus instrumentation, panic recovery, security headers,
// optional CORS, global rate limiting and optional token authentication.
// Write routes additionally require an authenticated user and login attempts
// are throttled per client IP, in memory or through Redis.
package server
