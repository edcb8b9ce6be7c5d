package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/voxloop/trialguard/pkg/config"
)

func adminRouter(secret string) (*gin.Engine, *string) {
	gin.SetMode(gin.TestMode)
	subject := new(string)
	r := gin.New()
	r.Use(AdminAuthMiddleware(&cfgpkg.Config{AdminJWTSecret: secret}))
	r.GET("/admin/ping", func(c *gin.Context) {
		*subject = c.GetString("admin_subject")
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r, subject
}

func signToken(t *testing.T, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "ops"}).
		SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAdminAuth_NoSecretSkipsCheck(t *testing.T) {
	r, _ := adminRouter("")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAdminAuth_MissingTokenRejected(t *testing.T) {
	r, _ := adminRouter("secret")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/ping", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminAuth_ValidTokenSetsSubject(t *testing.T) {
	r, subject := adminRouter("secret")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "secret"))
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ops", *subject)
}

func TestAdminAuth_WrongSignatureRejected(t *testing.T) {
	r, _ := adminRouter("secret")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "other-secret"))
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}
