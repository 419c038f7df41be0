// Package monitor watches one device: a poll loop, the state machine that
// keeps the fleet sets current, and the fault and hang recovery procedures.
//
// A Monitor learns the device state two ways. Asynchronous events arrive
// through HandleEvent; the poll loop in Run queries the state every poll
// period with one retry. Both paths serialise on the monitor's lock and
// feed the same transition rules:
//
//	RUNNING  -> running set (leaves fault set, fault counter reset)
//	FAULT    -> fault set
//	other    -> leaves running or fault set
//	any      -> leaves hang set (hang counter reset)
//
// A poll cycle without any answer puts the device in the hang set and
// caches UNKNOWN. A second silent cycle runs hang recovery when enabled.
// A FAULT answer runs fault recovery when enabled. Recovery runs on the
// poll goroutine with the lock released, so events are never held up.
package monitor
