package routes

import (
	"net/http"
	"strconv"
	"time"

	"rwalend/gateway/middleware"
	"rwalend/services/rwalendd/audit"
)

type auditView struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Subject    string            `json:"subject,omitempty"`
	Height     string            `json:"height,omitempty"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// recentEvents serves the audit sink. ?type, ?subject and ?limit filter.
func (h *handlers) recentEvents(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		middleware.WriteError(w, http.StatusNotFound, "NotFound", "event history is not enabled")
		return
	}
	q := audit.Query{Type: r.URL.Query().Get("type"), Subject: r.URL.Query().Get("subject")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, badRequest("limit must be an integer"))
			return
		}
		q.Limit = limit
	}
	records, err := h.audit.Recent(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]auditView, 0, len(records))
	for _, rec := range records {
		attrs, err := rec.Decode()
		if err != nil {
			h.log.Warn("audit record undecodable", "id", rec.ID.String(), "error", err.Error())
			continue
		}
		out = append(out, auditView{
			ID:         rec.ID.String(),
			Type:       rec.Type,
			Subject:    rec.Subject,
			Height:     rec.Height,
			Attributes: attrs,
			CreatedAt:  rec.CreatedAt,
		})
	}
	writeOK(w, map[string]interface{}{"events": out})
}
