package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/service"
)

func newProtectedRouter(tokens *service.TokenService, roles ...models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(JWT(tokens))
	router.GET("/runs", RequireRoles(roles...), func(c *gin.Context) {
		claims := c.MustGet(ContextUserKey).(*models.JWTClaims)
		c.String(http.StatusOK, claims.UserID)
	})
	return router
}

func TestJWTRejectsMissingAndMalformedHeaders(t *testing.T) {
	router := newProtectedRouter(service.NewTokenService("secret"), models.RoleAdmin)

	cases := map[string]string{
		"missing":   "",
		"no scheme": "abc.def.ghi",
		"basic":     "Basic dXNlcjpwYXNz",
		"garbage":   "Bearer not-a-token",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/runs", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestJWTAndRoles(t *testing.T) {
	tokens := service.NewTokenService("secret")
	router := newProtectedRouter(tokens, models.RoleAdmin, models.RoleSuperAdmin)

	admin, err := tokens.Issue("admin-1", models.RoleAdmin, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin-1", w.Body.String())

	student, err := tokens.Issue("student-1", models.RoleStudent, time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/runs", nil)
	req.Header.Set("Authorization", "bearer "+student)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestOptionalJWTNeverBlocks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := service.NewTokenService("secret")
	router := gin.New()
	router.Use(OptionalJWT(tokens))
	router.GET("/whoami", func(c *gin.Context) {
		if value, ok := c.Get(ContextUserKey); ok {
			c.String(http.StatusOK, value.(*models.JWTClaims).UserID)
			return
		}
		c.String(http.StatusOK, "anonymous")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer broken")
	router.ServeHTTP(w, req)
	assert.Equal(t, "anonymous", w.Body.String())

	token, err := tokens.Issue("teacher-9", models.RoleTeacher, time.Hour)
	require.NoError(t, err)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)
	assert.Equal(t, "teacher-9", w.Body.String())
}

func TestCurrentClaimsIgnoresMissingAndForeignValues(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, CurrentClaims(c))

	c.Set(ContextUserKey, "not-claims")
	assert.Nil(t, CurrentClaims(c))

	c.Set(ContextUserKey, &models.JWTClaims{UserID: "u1", Role: models.RoleTeacher})
	require.NotNil(t, CurrentClaims(c))
	assert.Equal(t, "u1", CurrentClaims(c).UserID)
}
