// Package httpapi is the HTTP control surface: it reads and patches the
// timetable store and injects playback signals.
//
// Mutating routes answer 202 Accepted once the change is applied to the store
// or the signal is queued. The controller acts on signals asynchronously.
package httpapi
