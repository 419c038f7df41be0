package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-watchdog/internal/audit"
	"github.com/nerrad567/gray-logic-watchdog/internal/process"
)

// handleFleet returns the running, fault and hang sets.
func (s *Server) handleFleet(w http.ResponseWriter, _ *http.Request) {
	snap := s.fleet.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"running":         snap.Running,
		"fault":           snap.Fault,
		"hang":            snap.Hang,
		"running_count":   len(snap.Running),
		"fault_count":     len(snap.Fault),
		"hang_count":      len(snap.Hang),
		"pending_changes": snap.PendingChanges,
	})
}

// handleListDevices returns every monitored device.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.devices.Devices()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns one monitored device.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	name := strings.Trim(chi.URLParam(r, "*"), "/")
	if name == "" {
		writeBadRequest(w, "device name is required")
		return
	}
	snap, ok := s.devices.Device(name)
	if !ok {
		writeNotFound(w, "device not monitored: "+name)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleListInstances returns the supervised device-server instances.
func (s *Server) handleListInstances(w http.ResponseWriter, _ *http.Request) {
	instances := []process.Stats{}
	if s.instances != nil {
		instances = s.instances.Instances()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"instances": instances,
		"count":     len(instances),
	})
}

// handleFlushDigest sends the pending digest now.
func (s *Server) handleFlushDigest(w http.ResponseWriter, r *http.Request) {
	if s.digest == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "digest reporter not configured")
		return
	}
	sent, err := s.digest.Flush(r.Context())
	if err != nil {
		s.logger.Warn("digest flush failed", "error", err, "subject", subject(r.Context()))
		writeError(w, http.StatusBadGateway, ErrCodeBadGateway, err.Error())
		return
	}
	s.logger.Info("digest flushed on request", "sent", sent, "subject", subject(r.Context()))
	s.record(r.Context(), audit.ActionDigestFlush, "", map[string]any{"sent": sent})
	writeJSON(w, http.StatusOK, map[string]any{"sent": sent})
}
