package auth

import (
	"errors"
	"net/http"
	"strings"

	"notes-server/internal/observability"
	"notes-server/internal/user"
)

// Authenticator resolves bearer tokens to principals. It never aborts the
// request pipeline: absent, malformed, expired or orphaned tokens all let
// the request continue anonymous, and RequirePrincipal decides downstream
// whether anonymous is acceptable.
type Authenticator struct {
	tokens TokenService
	users  UserStore
	logger *observability.Logger
}

func NewAuthenticator(tokens TokenService, users UserStore, logger *observability.Logger) *Authenticator {
	return &Authenticator{tokens: tokens, users: users, logger: logger}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		principalID, err := a.tokens.Validate(raw)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		u, err := a.users.GetByUsername(r.Context(), principalID)
		if err != nil {
			// Token outlived the account, or the store hiccuped.
			// Either way the request is merely unauthenticated.
			if !errors.Is(err, user.ErrNotFound) {
				a.logger.Error("principal_lookup_failed", map[string]any{"error": err.Error()})
			}
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), u)))
	})
}

// RequirePrincipal rejects anonymous requests with a uniform 401.
func RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFrom(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
