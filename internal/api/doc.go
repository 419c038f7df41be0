// Package api provides the HTTP REST API and WebSocket server of the watchdog.
//
// It exposes the published attribute surface (fleet counters and lists,
// per-device mirrors, dealer selection, service state), a read-only view of
// every monitored device, the supervised device-server instances and an
// on-demand digest flush.
//
// Reads are open. Attribute writes and digest flushes require an operator
// bearer token signed with security.jwt.secret; without a secret every
// write is refused.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
