package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/KevinKickass/OpenMotionCore/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func cheapHasher() *Hasher {
	return &Hasher{memory: 1024, iterations: 1, parallelism: 1, saltLength: 16, keyLength: 32}
}

func newService(t *testing.T) (*AuthService, string, string) {
	t.Helper()
	h := cheapHasher()

	adminKey, err := GenerateAPIKey()
	require.NoError(t, err)
	operatorKey, err := GenerateAPIKey()
	require.NoError(t, err)

	adminHash, err := h.Hash(adminKey)
	require.NoError(t, err)
	operatorHash, err := h.Hash(operatorKey)
	require.NoError(t, err)

	svc := NewAuthService(config.AuthConfig{
		JWTSecretEnv:   "OMC_AUTH_TEST_SECRET",
		AccessTokenTTL: time.Minute,
		APIKeys: []config.APIKeyConfig{
			{Name: "hmi", Hash: operatorHash, Role: "operator"},
			{Name: "service", Hash: adminHash, Role: "admin"},
		},
	}, zap.NewNop())
	return svc, adminKey, operatorKey
}

func TestAPIKeyFormat(t *testing.T) {
	key, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.True(t, ValidKeyFormat(key))
	assert.False(t, ValidKeyFormat("omc_short"))
	assert.False(t, ValidKeyFormat("xyz"+key[3:]))
}

func TestHasherRoundTrip(t *testing.T) {
	h := cheapHasher()
	hash, err := h.Hash("secret")
	require.NoError(t, err)

	ok, err := h.Verify("secret", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("other", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.Verify("secret", "$bcrypt$nope")
	assert.Error(t, err)
}

func TestIssueAndValidateToken(t *testing.T) {
	svc, adminKey, operatorKey := newService(t)

	token, expires, role, err := svc.IssueToken(adminKey, "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "admin", role)
	assert.WithinDuration(t, time.Now().Add(time.Minute), expires, 5*time.Second)

	perms, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.ElementsMatch(t, []Permission{PermOperator, PermAdmin}, perms)

	token, _, role, err = svc.IssueToken(operatorKey, "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "operator", role)
	perms, err = svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, []Permission{PermOperator}, perms)

	other, err := GenerateAPIKey()
	require.NoError(t, err)
	_, _, _, err = svc.IssueToken(other, "127.0.0.1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.ValidateToken("not-a-jwt")
	assert.Error(t, err)
}

func TestMiddlewareEnforcesPermissions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _, operatorKey := newService(t)
	token, _, _, err := svc.IssueToken(operatorKey, "")
	require.NoError(t, err)

	r := gin.New()
	g := r.Group("/", svc.AuthMiddleware())
	g.GET("/status", func(c *gin.Context) { c.Status(http.StatusOK) })
	g.POST("/shutdown", RequirePermission(PermAdmin), func(c *gin.Context) { c.Status(http.StatusAccepted) })

	do := func(method, path, header string) int {
		req := httptest.NewRequest(method, path, nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/status", ""))
	assert.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/status", "Token "+token))
	assert.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/status", "Bearer garbage"))
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/status", "Bearer "+token))
	assert.Equal(t, http.StatusForbidden, do(http.MethodPost, "/shutdown", "Bearer "+token))
}

func TestBearerToken(t *testing.T) {
	token, err := BearerToken("Bearer abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", token)

	_, err = BearerToken("")
	assert.ErrorIs(t, err, ErrMissingToken)
	_, err = BearerToken("Basic abc")
	assert.ErrorIs(t, err, ErrTokenFormat)
	_, err = BearerToken("Bearer ")
	assert.ErrorIs(t, err, ErrTokenFormat)
}
