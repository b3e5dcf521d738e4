// Package api hosts the HTTP handlers of the podcast REST API.
//
// Handlers decode requests (JSON bodies, or multipart forms carrying image and
// audio files), call the services of internal/service and shape the JSON
// responses. They never make authorization decisions themselves: the services
// resolve, authorize, validate, upload and persist in that order, and every
// service error is translated to a status code by writeServiceError.
//
// Authentication is resolved upstream by the middleware of internal/server,
// which stores the caller on the request context (see ContextWithUser).
package api
