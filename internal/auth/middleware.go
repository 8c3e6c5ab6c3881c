package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CookieName carries the token for browser clients.
const CookieName = "access_token"

const studentKey = "student_id"

// Subjects confirms that a token subject is still a known student.
type Subjects interface {
	SubjectExists(ctx context.Context, studentID int64) (bool, error)
}

// StudentAuth accepts a bearer token from the Authorization header or the
// access_token cookie and stores the student id on the context.
func StudentAuth(issuer *Issuer, subjects Subjects) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			unauthorized(c, "Not authenticated")
			return
		}
		claims, err := issuer.Parse(tokenStr)
		if err != nil {
			unauthorized(c, "Could not validate credentials")
			return
		}
		studentID, err := claims.StudentID()
		if err != nil {
			unauthorized(c, "Invalid token subject")
			return
		}
		ok, err := subjects.SubjectExists(c.Request.Context(), studentID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
			return
		}
		if !ok {
			unauthorized(c, "User not found")
			return
		}
		c.Set(studentKey, studentID)
		c.Next()
	}
}

// StudentID returns the id stored by StudentAuth.
func StudentID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(studentKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

func bearerToken(c *gin.Context) string {
	authz := c.GetHeader("Authorization")
	if authz != "" {
		if len(authz) > len("bearer ") && strings.EqualFold(authz[:len("bearer ")], "bearer ") {
			return strings.TrimSpace(authz[len("bearer "):])
		}
		return ""
	}
	cookie, err := c.Cookie(CookieName)
	if err != nil {
		return ""
	}
	cookie = strings.TrimSpace(cookie)
	if len(cookie) > len("bearer ") && strings.EqualFold(cookie[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(cookie[len("bearer "):])
	}
	return cookie
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}
