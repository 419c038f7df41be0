// Package device holds the watchdog's view of a watched device: its bus
// state, the asynchronous events it emits, the capability contracts the
// monitor talks through, and the persisted watch list.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                          device                               │
//	│                                                               │
//	│  ┌──────────────┐   ┌──────────────┐   ┌──────────────────┐   │
//	│  │  types.go    │   │ contracts.go │   │  watchlist.go    │   │
//	│  │ State/Event  │   │ Handle       │   │ config + stored  │   │
//	│  │ Quality      │   │ Subscriber   │   │ names merged     │   │
//	│  │ Change       │   │ FleetManager │   └────────┬─────────┘   │
//	│  └──────────────┘   │ Notifier     │            │             │
//	│                     │ Publisher    │   ┌────────▼─────────┐   │
//	│                     └──────────────┘   │  repository.go   │   │
//	│                                        │ SQLite watch list│   │
//	│                                        │ + settings       │   │
//	│                                        └──────────────────┘   │
//	└──────────────────────────────────────────────────────────────┘
//
// Implementations of the contracts live elsewhere: the bus package binds
// Handle, Subscriber and Notifier to MQTT, fleetmgr binds FleetManager to
// supervised processes, and attribute implements Publisher.
//
// # Naming
//
// Device names are case-insensitive and stored lower-cased. They may be
// hierarchical ("sys/tg_test/1"); AttributeName flattens them for the
// per-device attributes the watchdog publishes ("sys_tg_test_1_State").
package device
