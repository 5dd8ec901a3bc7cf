package maintenance

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"notes-server/internal/lockout"
	"notes-server/internal/observability"
)

// CleanupHandler prunes login-attempt state whose last activity predates
// the retention cutoff. Lock expiry itself is lazy and needs no sweep; this
// endpoint only keeps the state store from growing without bound, driven by
// an external cron.
type CleanupHandler struct {
	tracker    lockout.Tracker
	logger     *observability.Logger
	cronSecret string
	retention  time.Duration
}

func NewCleanupHandler(tracker lockout.Tracker, logger *observability.Logger, cronSecret string, retention time.Duration) *CleanupHandler {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}

	return &CleanupHandler{
		tracker:    tracker,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
		retention:  retention,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	cutoff := time.Now().UTC().Add(-h.retention)
	deleted, err := h.tracker.DeleteOlderThan(r.Context(), cutoff)
	if err != nil {
		h.logger.Error("login_attempt_cleanup_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	h.logger.Info("login_attempt_cleanup_completed", map[string]any{
		"deleted": deleted,
		"cutoff":  cutoff.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"deleted": deleted,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
