// File: api/shutdown.go
// Package api defines unified graceful shutdown contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// GracefulShutdown is implemented by components owning kernel resources.
type GracefulShutdown interface {
	// Shutdown releases every resource the component holds. Repeated
	// calls return nil.
	Shutdown() error
}
