package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"bitbucket.org/mmdatafocus/logistics_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func whoAmI(c *gin.Context) {
	ctx := c.Request.Context()
	tenantId, _ := utils.GetTenantIdFromContext(ctx)
	userId, _ := utils.GetUserIdFromContext(ctx)
	role, _ := utils.GetRoleFromContext(ctx)
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	c.JSON(http.StatusOK, gin.H{"tenant_id": tenantId, "user_id": userId, "role": role, "correlation_id": cid})
}

func newRouter() *gin.Engine {
	r := gin.New()
	r.Use(CorrelationMiddleware(), AuthMiddleware())
	r.GET("/me", whoAmI)
	return r
}

func TestAuthMiddleware_RejectsMissingAndInvalidTokens(t *testing.T) {
	r := newRouter()
	for _, header := range []string{"", "Bearer ", "Basic abc", "Bearer not-a-jwt"} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "header %q", header)
	}
}

func TestAuthMiddleware_SetsActor(t *testing.T) {
	token, err := utils.JwtGenerate("tenant-1", "user-1", "Daw Hla", "admin")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(CorrelationIdHeader, "cid-42")
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"tenant_id":"tenant-1","user_id":"user-1","role":"admin","correlation_id":"cid-42"}`, w.Body.String())
	assert.Equal(t, "cid-42", w.Header().Get(CorrelationIdHeader))
}

func TestAuthMiddleware_RejectsTokenWithoutTenant(t *testing.T) {
	token, err := utils.JwtGenerate("", "user-1", "Daw Hla", "admin")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCorrelationMiddleware_GeneratesId(t *testing.T) {
	r := gin.New()
	r.Use(CorrelationMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Len(t, w.Header().Get(CorrelationIdHeader), 36)
}

func TestRateLimiter_NoRedisPassesThrough(t *testing.T) {
	r := gin.New()
	r.Use(NewRateLimiter(nil, 1, 0).RateLimitMiddleware)
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
	}
}
