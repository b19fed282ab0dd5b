package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/camcore/internal/hotplug"
	"github.com/nerrad567/camcore/internal/inventory"
)

// handleListEvents returns recorded hot-plug events, most recent first.
//
// Query parameters: type (added|removed), camera_id, since (RFC 3339),
// limit, offset.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, r, http.StatusServiceUnavailable, "event history is disabled")
		return
	}

	q := r.URL.Query()
	filter := inventory.Filter{CameraID: q.Get("camera_id")}

	switch t := hotplug.EventType(q.Get("type")); t {
	case "", hotplug.EventAdded, hotplug.EventRemoved:
		filter.Type = t
	default:
		writeError(w, r, http.StatusBadRequest, "type must be added or removed")
		return
	}

	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = since
	}

	var ok bool
	if filter.Limit, ok = intParam(q.Get("limit")); !ok {
		writeError(w, r, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, ok = intParam(q.Get("offset")); !ok {
		writeError(w, r, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	result, err := s.events.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing camera events failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// intParam parses an optional non-negative integer; "" is 0.
func intParam(v string) (int, bool) {
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
