package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	tok, err := Issue("org-1", RoleOrganizer, "classroom", "secret", time.Minute)
	require.NoError(t, err)

	claims, err := Parse(tok, "secret", "classroom")
	require.NoError(t, err)
	assert.Equal(t, "org-1", claims.Subject)
	assert.Equal(t, RoleOrganizer, claims.Role)

	_, err = Parse(tok, "other", "classroom")
	assert.Error(t, err)
	_, err = Parse(tok, "secret", "someone-else")
	assert.Error(t, err)

	expired, err := Issue("org-1", RoleOrganizer, "classroom", "secret", -time.Minute)
	require.NoError(t, err)
	_, err = Parse(expired, "secret", "classroom")
	assert.Error(t, err)
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", RequireRole("secret", "classroom", RoleOrganizer), func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		require.True(t, ok)
		c.String(http.StatusOK, claims.Subject)
	})

	organizer, err := Issue("org-1", RoleOrganizer, "classroom", "secret", time.Minute)
	require.NoError(t, err)
	student, err := Issue("stu-1", RoleStudent, "classroom", "secret", time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "wrong role", header: "Bearer " + student, want: http.StatusForbidden},
		{name: "organizer", header: "Bearer " + organizer, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRequireRoleAcceptsAnyListedRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", RequireRole("secret", "classroom", RoleStudent, RoleOrganizer), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	for _, role := range []string{RoleStudent, RoleOrganizer, "auditor"} {
		tok, err := Issue("someone", role, "classroom", "secret", time.Minute)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if role == "auditor" {
			assert.Equal(t, http.StatusForbidden, w.Code)
		} else {
			assert.Equal(t, http.StatusNoContent, w.Code, role)
		}
	}
}
