// Package fleetmgr implements device.FleetManager on top of supervised
// device-server processes.
//
// Each configured instance names the binary that serves a set of devices.
// Hang recovery resolves a device to its instance and restarts it:
//
//	id, ok := fm.ResolveInstance(ctx, "sys/tg_test/1")
//	if ok {
//	    fm.StopInstance(ctx, id)
//	    fm.StartInstance(ctx, id)
//	}
//
// Processes started here live until StopAll, not until the context of the
// call that started them is done.
package fleetmgr
