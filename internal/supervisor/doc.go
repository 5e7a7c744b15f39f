// Package supervisor runs the daemon's long-lived units and keeps them
// alive.
//
// Each Unit runs in its own goroutine. A liveness loop notices units that
// returned or panicked and restarts them with exponential backoff. Each
// unit has a restart budget enforced by a token bucket
// (golang.org/x/time/rate); a unit that exhausts it is left down. On
// cancellation every unit context is cancelled and the supervisor waits a
// bounded time for them to return.
package supervisor
