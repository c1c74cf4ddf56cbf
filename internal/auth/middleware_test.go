package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.RegisteredClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return signed
}

func newRouter(audience string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/me", JWTMiddleware(secret, audience), func(c *gin.Context) {
		userID, ok := GetUserID(c.Request.Context())
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": userID})
	})
	return router
}

func do(router *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestJWTMiddlewareAcceptsValidToken(t *testing.T) {
	token := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.RegisteredClaims{
		Subject:   "user-42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	resp := do(newRouter(""), "Bearer "+token)

	require.Equal(t, http.StatusOK, resp.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "user-42", body["user_id"])
}

func TestJWTMiddlewareRejects(t *testing.T) {
	valid := jwt.RegisteredClaims{Subject: "user-42", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}

	cases := map[string]struct {
		audience string
		header   string
	}{
		"missing header": {header: ""},
		"wrong scheme":   {header: "Basic abc"},
		"empty token":    {header: "Bearer  "},
		"wrong secret":   {header: "Bearer " + sign(t, jwt.SigningMethodHS256, []byte("other"), valid)},
		"wrong method":   {header: "Bearer " + sign(t, jwt.SigningMethodHS512, []byte(secret), valid)},
		"expired": {header: "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.RegisteredClaims{
			Subject:   "user-42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		})},
		"missing subject": {header: "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		})},
		"wrong audience": {audience: "clean-bounty", header: "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.RegisteredClaims{
			Subject:  "user-42",
			Audience: jwt.ClaimStrings{"someone-else"},
		})},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			resp := do(newRouter(tc.audience), tc.header)
			assert.Equal(t, http.StatusUnauthorized, resp.Code)
		})
	}
}

func TestJWTMiddlewareChecksAudience(t *testing.T) {
	token := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.RegisteredClaims{
		Subject:  "user-42",
		Audience: jwt.ClaimStrings{"clean-bounty"},
	})

	assert.Equal(t, http.StatusOK, do(newRouter("clean-bounty"), "Bearer "+token).Code)
}

func TestGetUserIDWithoutValue(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := GetUserID(req.Context())
	assert.False(t, ok)

	id, ok := GetUserID(WithUserID(req.Context(), "u"))
	assert.True(t, ok)
	assert.Equal(t, "u", id)
}
