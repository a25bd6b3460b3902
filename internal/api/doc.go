// Package api handles incoming HTTP requests, routing, request validation,
// and response formatting for both binaries: the device agent's local task
// queue API and the public calculation service. It translates HTTP concerns
// into engine and calculator operations, keeping internal error details out
// of client responses.
package api
