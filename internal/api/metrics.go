package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-watchdog/internal/infrastructure/mqtt"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	WebSocket     WSMetrics        `json:"websocket"`
	Bus           mqtt.Stats       `json:"bus"`
	Telemetry     TelemetryMetrics `json:"telemetry"`
	Fleet         FleetMetrics     `json:"fleet"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// TelemetryMetrics reports the telemetry store.
type TelemetryMetrics struct {
	Enabled     bool   `json:"enabled"`
	WriteErrors uint64 `json:"write_errors"`
}

// writeErrorCounter is implemented by telemetry stores that count failed
// background writes. *influxdb.Client does.
type writeErrorCounter interface {
	WriteErrors() uint64
}

// FleetMetrics summarises monitoring.
type FleetMetrics struct {
	Monitored       int `json:"monitored"`
	Running         int `json:"running"`
	Fault           int `json:"fault"`
	Hang            int `json:"hang"`
	FaultRecoveries int `json:"fault_recoveries"`
	HangRecoveries  int `json:"hang_recoveries"`
	Overlapping     int `json:"overlapping"`
}

// handleMetrics returns system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
	}

	if s.bus != nil {
		metrics.Bus = s.bus.Stats()
	}
	if s.telemetry != nil {
		metrics.Telemetry.Enabled = true
		if c, ok := s.telemetry.(writeErrorCounter); ok {
			metrics.Telemetry.WriteErrors = c.WriteErrors()
		}
	}

	snap := s.fleet.Snapshot()
	metrics.Fleet.Running = len(snap.Running)
	metrics.Fleet.Fault = len(snap.Fault)
	metrics.Fleet.Hang = len(snap.Hang)
	for _, d := range s.devices.Devices() {
		metrics.Fleet.Monitored++
		metrics.Fleet.FaultRecoveries += d.FaultRecoveries
		metrics.Fleet.HangRecoveries += d.HangRecoveries
		if d.Overlaps > 0 {
			metrics.Fleet.Overlapping++
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
