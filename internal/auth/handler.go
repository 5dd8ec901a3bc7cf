package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/getsentry/sentry-go"

	"notes-server/internal/lockout"
	"notes-server/internal/user"
)

var (
	usernameRegex = regexp.MustCompile(`^[a-z0-9_.-]{3,32}$`)
	emailRegex    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service     *Service
	adminSecret string
}

func NewHandler(service *Service, adminSecret string) *Handler {
	return &Handler{service: service, adminSecret: strings.TrimSpace(adminSecret)}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type unlockRequest struct {
	Username string `json:"username"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	username := NormalizeIdentifier(body.Username)
	email := strings.TrimSpace(strings.ToLower(body.Email))
	if !usernameRegex.MatchString(username) {
		writeError(w, http.StatusBadRequest, "invalid_request", "username format is invalid")
		return
	}
	if !emailRegex.MatchString(email) || len(email) > 254 {
		writeError(w, http.StatusBadRequest, "invalid_request", "email format is invalid")
		return
	}
	if len(body.Password) < 8 || len(body.Password) > 200 {
		writeError(w, http.StatusBadRequest, "invalid_request", "password format is invalid")
		return
	}

	token, err := h.service.Register(r.Context(), username, email, body.Password)
	if err != nil {
		switch {
		case errors.Is(err, user.ErrUsernameTaken):
			writeError(w, http.StatusConflict, "conflict", "username already taken")
		case errors.Is(err, user.ErrEmailTaken):
			writeError(w, http.StatusConflict, "conflict", "email already taken")
		default:
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to register")
		}
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	token, err := h.service.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "invalid_credentials", ErrInvalidCredentials.Error())
		case errors.Is(err, ErrAccountLocked):
			w.Header().Set("Retry-After", strconv.Itoa(int(lockout.Window.Seconds())))
			writeError(w, http.StatusTooManyRequests, "account_locked", "account is temporarily locked, try again later")
		default:
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to login")
		}
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

// Unlock is the administrative override, guarded by the admin secret the
// same way the maintenance endpoint is guarded by its cron secret.
func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	if h.adminSecret == "" {
		writeError(w, http.StatusNotFound, "not_found", "not found")
		return
	}
	if bearerToken(r) != h.adminSecret {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "unauthorized")
		return
	}

	var body unlockRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if err := h.service.Unlock(r.Context(), body.Username); err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to unlock")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Me returns the authenticated user. Authorization data always comes from
// here rather than from token claims, so it can never go stale.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}

	writeJSON(w, http.StatusOK, principal)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json body")
		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "error": message})
}
