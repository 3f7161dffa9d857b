// Package http serves a presentation over HTTP.
//
// A Bridge implements ports.Presentation: the executor starts states and pushes
// asynchronous data through it, remote clients follow them on GET /events and
// answer with POST /presentation/complete or POST /presentation/negotiate.
package http
