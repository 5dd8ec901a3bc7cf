package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"notes-server/internal/lockout"
)

const testAdminSecret = "cron-admin-secret"

func newTestHandler(t *testing.T) (*Handler, *testGateway) {
	t.Helper()
	gw := newTestGateway(t)
	return NewHandler(gw.service, testAdminSecret), gw
}

func postJSON(t *testing.T, handler http.HandlerFunc, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandlerLogin_Success(t *testing.T) {
	t.Parallel()

	handler, gw := newTestHandler(t)
	gw.users.add(t, "alice", "s3cret-long-enough")

	rec := postJSON(t, handler.Login, "/api/auth/login", `{"username":"alice","password":"s3cret-long-enough"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	principal, err := gw.tokens.Validate(body.Token)
	require.NoError(t, err)
	require.Equal(t, "alice", principal)
}

// Unknown username and wrong password must be byte-identical on the wire.
func TestHandlerLogin_UniformInvalidCredentials(t *testing.T) {
	t.Parallel()

	handler, gw := newTestHandler(t)
	gw.users.add(t, "alice", "s3cret-long-enough")

	unknown := postJSON(t, handler.Login, "/api/auth/login", `{"username":"nobody","password":"guess"}`, nil)
	wrong := postJSON(t, handler.Login, "/api/auth/login", `{"username":"alice","password":"guess"}`, nil)

	require.Equal(t, http.StatusUnauthorized, unknown.Code)
	require.Equal(t, http.StatusUnauthorized, wrong.Code)
	require.Equal(t, unknown.Body.String(), wrong.Body.String())
	require.Equal(t, "invalid_credentials", decodeErrorBody(t, wrong)["code"])
}

func TestHandlerLogin_LockedMapsTo429(t *testing.T) {
	t.Parallel()

	handler, gw := newTestHandler(t)
	gw.users.add(t, "alice", "s3cret-long-enough")

	for i := 0; i < lockout.Threshold; i++ {
		rec := postJSON(t, handler.Login, "/api/auth/login", `{"username":"alice","password":"guess"}`, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := postJSON(t, handler.Login, "/api/auth/login", `{"username":"alice","password":"s3cret-long-enough"}`, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
	require.Equal(t, "account_locked", decodeErrorBody(t, rec)["code"])
}

func TestHandlerLogin_BadJSON(t *testing.T) {
	t.Parallel()

	handler, _ := newTestHandler(t)

	rec := postJSON(t, handler.Login, "/api/auth/login", `{"username":`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, handler.Login, "/api/auth/login", `{"username":"a","password":"b","extra":true}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerRegister_Validation(t *testing.T) {
	t.Parallel()

	handler, _ := newTestHandler(t)

	cases := []struct {
		name string
		body string
	}{
		{"short username", `{"username":"ab","email":"a@b.co","password":"hunter2hunter2"}`},
		{"bad username chars", `{"username":"has space","email":"a@b.co","password":"hunter2hunter2"}`},
		{"bad email", `{"username":"alice","email":"not-an-email","password":"hunter2hunter2"}`},
		{"short password", `{"username":"alice","email":"a@b.co","password":"short"}`},
	}
	for _, tc := range cases {
		rec := postJSON(t, handler.Register, "/api/auth/register", tc.body, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code, tc.name)
	}
}

func TestHandlerRegister_Conflict(t *testing.T) {
	t.Parallel()

	handler, gw := newTestHandler(t)
	gw.users.add(t, "alice", "s3cret-long-enough")

	rec := postJSON(t, handler.Register, "/api/auth/register", `{"username":"alice","email":"other@example.com","password":"hunter2hunter2"}`, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "conflict", decodeErrorBody(t, rec)["code"])
}

func TestHandlerRegister_SuccessReturnsToken(t *testing.T) {
	t.Parallel()

	handler, gw := newTestHandler(t)

	rec := postJSON(t, handler.Register, "/api/auth/register", `{"username":"carol","email":"carol@example.com","password":"hunter2hunter2"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	principal, err := gw.tokens.Validate(body.Token)
	require.NoError(t, err)
	require.Equal(t, "carol", principal)
}

func TestHandlerUnlock_Guarded(t *testing.T) {
	t.Parallel()

	handler, gw := newTestHandler(t)
	gw.users.add(t, "alice", "s3cret-long-enough")

	for i := 0; i < lockout.Threshold; i++ {
		postJSON(t, handler.Login, "/api/auth/login", `{"username":"alice","password":"guess"}`, nil)
	}
	requireLocked(t, gw.tracker, "alice", true)

	rec := postJSON(t, handler.Unlock, "/api/auth/unlock", `{"username":"alice"}`, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(t, handler.Unlock, "/api/auth/unlock", `{"username":"alice"}`,
		map[string]string{"Authorization": "Bearer wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(t, handler.Unlock, "/api/auth/unlock", `{"username":"alice"}`,
		map[string]string{"Authorization": "Bearer " + testAdminSecret})
	require.Equal(t, http.StatusNoContent, rec.Code)
	requireLocked(t, gw.tracker, "alice", false)
}

func TestHandlerUnlock_DisabledWithoutSecret(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t)
	handler := NewHandler(gw.service, "")

	rec := postJSON(t, handler.Unlock, "/api/auth/unlock", `{"username":"alice"}`, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
