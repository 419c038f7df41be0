// Package watchdog assembles the fleet health monitor.
//
// A Service owns one monitor per watched device, the fleet aggregator,
// the digest reporter, the dealer and the published attribute registry.
// Bus, notification, fleet-manager and telemetry bindings are injected so
// the service can run against fakes in tests.
//
//	svc, err := watchdog.New(ctx, cfg, deps)
//	if err != nil {
//	    return err
//	}
//	err = svc.Run(ctx) // blocks until ctx is cancelled
package watchdog
