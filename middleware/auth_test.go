package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/llm-gateway/internal/runtimeconfig"
	"github.com/upb/llm-gateway/models"
	"go.uber.org/zap"
)

const testSecret = "test-signing-secret"

func testAuthenticator(t *testing.T) *Authenticator {
	t.Helper()
	snap := runtimeconfig.NewSnapshot(1,
		[]*models.Application{{ID: "acct-a", APIKey: "key-a", Enabled: true}},
		nil, nil, nil, nil,
	)
	return NewAuthenticator(runtimeconfig.NewStoreFromSnapshot(snap, zap.NewNop()), testSecret, zap.NewNop())
}

func echoAppHandler(t *testing.T, wantID string) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		app := ApplicationFrom(r.Context())
		require.NotNil(t, app)
		assert.Equal(t, wantID, app.ID)
		w.WriteHeader(http.StatusOK)
	})
}

func serviceToken(t *testing.T, appID, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"app_id": appID,
		"exp":    time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestAPIKeyAuth(t *testing.T) {
	auth := testAuthenticator(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	req.Header.Set("X-API-Key", "key-a")
	rec := httptest.NewRecorder()

	auth.Middleware(echoAppHandler(t, "acct-a")).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownAPIKeyRejected(t *testing.T) {
	auth := testAuthenticator(t)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-API-Key", "nope")
	rec := httptest.NewRecorder()

	auth.Middleware(echoAppHandler(t, "")).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_api_key")
}

func TestMissingCredentialsRejected(t *testing.T) {
	auth := testAuthenticator(t)

	rec := httptest.NewRecorder()
	auth.Middleware(echoAppHandler(t, "")).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "authentication_required")
}

func TestServiceTokenAuth(t *testing.T) {
	auth := testAuthenticator(t)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+serviceToken(t, "acct-a", testSecret))
	rec := httptest.NewRecorder()

	auth.Middleware(echoAppHandler(t, "acct-a")).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServiceTokenBadSignature(t *testing.T) {
	auth := testAuthenticator(t)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+serviceToken(t, "acct-a", "wrong-secret"))
	rec := httptest.NewRecorder()

	auth.Middleware(echoAppHandler(t, "")).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServiceTokenUnknownApp(t *testing.T) {
	auth := testAuthenticator(t)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+serviceToken(t, "acct-z", testSecret))
	rec := httptest.NewRecorder()

	auth.Middleware(echoAppHandler(t, "")).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
