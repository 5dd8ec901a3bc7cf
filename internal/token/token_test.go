package token

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestService(ttl time.Duration) *Service {
	return NewService(testSecret, ttl, nil)
}

func TestIssueValidate_RoundTrip(t *testing.T) {
	t.Parallel()

	svc := newTestService(15 * time.Minute)

	for _, principal := range []string{"alice", "bob.smith", "user-with-Ünïcode"} {
		raw, err := svc.Issue(principal)
		require.NoError(t, err)
		require.Len(t, strings.Split(raw, "."), 3)

		got, err := svc.Validate(raw)
		require.NoError(t, err)
		require.Equal(t, principal, got)
	}
}

func TestValidate_Expired(t *testing.T) {
	t.Parallel()

	svc := newTestService(time.Minute)
	raw, err := svc.Issue("alice")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	_, err = svc.Validate(raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_TamperedSignature(t *testing.T) {
	t.Parallel()

	svc := newTestService(time.Minute)
	raw, err := svc.Issue("alice")
	require.NoError(t, err)

	parts := strings.Split(raw, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	_, err = svc.Validate(tampered)
	require.ErrorIs(t, err, ErrInvalidToken)
}

// Expired and corrupted tokens must be indistinguishable in error shape.
func TestValidate_ExpiryAndTamperSameError(t *testing.T) {
	t.Parallel()

	svc := newTestService(time.Minute)
	raw, err := svc.Issue("alice")
	require.NoError(t, err)

	expiredSvc := newTestService(time.Minute)
	expiredSvc.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, expiredErr := expiredSvc.Validate(raw)

	_, tamperedErr := svc.Validate(raw + "x")

	require.Equal(t, expiredErr, tamperedErr)
	require.ErrorIs(t, expiredErr, ErrInvalidToken)
}

func TestValidate_Garbage(t *testing.T) {
	t.Parallel()

	svc := newTestService(time.Minute)
	for _, raw := range []string{"", "not-a-token", "a.b", "a.b.c.d", "...."} {
		_, err := svc.Validate(raw)
		require.ErrorIs(t, err, ErrInvalidToken, "input %q", raw)
	}
}

func TestValidate_WrongKey(t *testing.T) {
	t.Parallel()

	svc := newTestService(time.Minute)
	other := NewService("another-secret-another-secret-32", time.Minute, nil)

	raw, err := other.Issue("alice")
	require.NoError(t, err)

	_, err = svc.Validate(raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_RejectsForeignSigningMethod(t *testing.T) {
	t.Parallel()

	svc := newTestService(time.Minute)

	claims := jwt.RegisteredClaims{
		Subject:   "alice",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS384, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = svc.Validate(raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_MissingSubject(t *testing.T) {
	t.Parallel()

	svc := newTestService(time.Minute)
	raw, err := svc.Issue("")
	require.NoError(t, err)

	_, err = svc.Validate(raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}

type capturedWarn struct {
	message string
	fields  map[string]any
}

type fakeWarnLogger struct {
	warns []capturedWarn
}

func (l *fakeWarnLogger) Warn(message string, fields map[string]any) {
	l.warns = append(l.warns, capturedWarn{message: message, fields: fields})
}

func TestNewService_ShortKeyWarnsButWorks(t *testing.T) {
	t.Parallel()

	logger := &fakeWarnLogger{}
	svc := NewService("short", time.Minute, logger)
	require.Len(t, logger.warns, 1)

	raw, err := svc.Issue("alice")
	require.NoError(t, err)

	got, err := svc.Validate(raw)
	require.NoError(t, err)
	require.Equal(t, "alice", got)
}

func TestNewService_LongKeyNoWarning(t *testing.T) {
	t.Parallel()

	logger := &fakeWarnLogger{}
	NewService(testSecret, time.Minute, logger)
	require.Empty(t, logger.warns)
}
