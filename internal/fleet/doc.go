// Package fleet aggregates per-device states into fleet-wide membership
// sets and reports their changes.
//
// The Aggregator owns three mutually exclusive sets (running, fault and
// hang). Monitors add and remove their device concurrently; every change
// publishes the set's count and member list, records an entry in the
// changes log when the count moved, and alerts immediately for the fault
// and hang sets.
//
// The Reporter drains the changes log on a fixed period and sends one
// digest per period:
//
//	agg := fleet.New(publisher, notifier)
//	rep := fleet.NewReporter(agg.Changes(), notifier, 8*time.Hour)
//	go rep.Run(ctx)
//
//	agg.AppendTo(fleet.Fault, "sys/tg_test/1")
package fleet
