package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(GetUserID(r.Context())))
	})
}

func serve(h http.Handler, header, value string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareBearerToken(t *testing.T) {
	cfg := NewJWTConfig("secret", false)
	token, err := cfg.IssueToken("poster-1", time.Hour)
	require.NoError(t, err)

	rec := serve(cfg.Middleware(echoUser()), "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "poster-1", rec.Body.String())
}

func TestMiddlewareRejectsBadTokens(t *testing.T) {
	cfg := NewJWTConfig("secret", false)
	other := NewJWTConfig("other", false)
	foreign, _ := other.IssueToken("poster-1", time.Hour)
	expired, _ := cfg.IssueToken("poster-1", -time.Minute)

	for name, value := range map[string]string{
		"malformed header": "Token abc",
		"wrong secret":     "Bearer " + foreign,
		"expired":          "Bearer " + expired,
		"garbage":          "Bearer not.a.jwt",
	} {
		rec := serve(cfg.Middleware(echoUser()), "Authorization", value)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, name)
	}
}

func TestMiddlewareRejectsNoneAlgorithm(t *testing.T) {
	cfg := NewJWTConfig("secret", false)
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "x"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	rec := serve(cfg.Middleware(echoUser()), "Authorization", "Bearer "+unsigned)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareDevHeader(t *testing.T) {
	dev := NewJWTConfig("secret", true)
	rec := serve(dev.Middleware(echoUser()), DevUserHeader, "hunter-1")
	assert.Equal(t, "hunter-1", rec.Body.String())

	prod := NewJWTConfig("secret", false)
	rec = serve(prod.Middleware(echoUser()), DevUserHeader, "hunter-1")
	assert.Equal(t, "", rec.Body.String())
}

func TestRequireUser(t *testing.T) {
	cfg := NewJWTConfig("secret", true)
	h := cfg.Middleware(RequireUser(echoUser()))

	assert.Equal(t, http.StatusUnauthorized, serve(h, "", "").Code)
	assert.Equal(t, http.StatusOK, serve(h, DevUserHeader, "u1").Code)
}

func TestParseTokenRequiresSubject(t *testing.T) {
	cfg := NewJWTConfig("secret", false)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Issuer: "bountyexpo"}).
		SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = cfg.ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
