// Package gateway defines the lifecycle contract shared by the
// user-facing surfaces (HTTP API, local REPL). The WebSocket server
// mounts into the HTTP gateway rather than running standalone.
package gateway

import "context"

// Gateway is one user-facing surface of the daemon.
type Gateway interface {
	// Start runs the surface until it exits or ctx is canceled.
	Start(ctx context.Context) error

	// Stop shuts the surface down gracefully, draining in-flight work
	// within the deadline carried by ctx.
	Stop(ctx context.Context) error
}
