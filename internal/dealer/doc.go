// Package dealer spreads numeric values over the devices that are
// currently running.
//
// A policy turns the candidate count into a value sequence. The dealer
// writes value i to the first attribute of each configured pair on
// candidate i, and the mirrored value n-1-i to the second attribute:
//
//	Equidistant{Offset: 0, Step: 1000}, 3 candidates
//	  first:  0, 1000, 2000
//	  second: 2000, 1000, 0
//
// The Manager holds the active dealer, rebuilds it when another policy is
// selected and runs distribution passes when the running set changes.
package dealer
