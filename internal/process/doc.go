// Package process supervises device-server subprocesses.
//
// The watchdog's fleet manager uses it to stop and start the server
// instance that hosts a hung device. Each Manager owns one child process
// in its own process group.
//
// Features:
//   - Start/stop with SIGTERM then SIGKILL after a grace period
//   - Optional restart on unexpected exit with exponential backoff
//   - Restart counter reset once the process has run for StableThreshold
//   - stdout/stderr captured line by line at debug level
//
// Example usage:
//
//	mgr := process.NewManager(process.Config{
//	    Name:             "ds-test-1",
//	    Binary:           "/usr/local/bin/DeviceServer",
//	    Args:             []string{"instance1"},
//	    RestartOnFailure: true,
//	})
//
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
package process
