package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-watchdog/internal/audit"
)

// auditSource tags entries recorded by the API.
const auditSource = "api"

// record appends an operator action to the audit trail. A failure is
// logged; the action itself has already succeeded.
func (s *Server) record(ctx context.Context, action, target string, details map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Create(context.WithoutCancel(ctx), &audit.Entry{
		Action:  action,
		Target:  target,
		Subject: subject(ctx),
		Source:  auditSource,
		Details: details,
	})
	if err != nil {
		s.logger.Warn("recording audit entry failed", "action", action, "target", target, "error", err)
	}
}

// handleListAudit returns the audit trail, most recent first.
//
// Query parameters: action, target, limit, offset.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "audit trail not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action: q.Get("action"),
		Target: q.Get("target"),
	}
	var err error
	if v := q.Get("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if filter.Offset, err = strconv.Atoi(v); err != nil {
			writeBadRequest(w, "offset must be an integer")
			return
		}
	}

	res, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit entries failed", "error", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "listing audit entries failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
