package handler

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"geoattend/internal/auth"
	"geoattend/internal/directory"
)

type signupForm struct {
	Name           string `form:"name" binding:"required"`
	RegisterNumber string `form:"register_number" binding:"required"`
	CollegeID      int64  `form:"college_id" binding:"required,gt=0"`
	CourseID       int64  `form:"course_id" binding:"required,gt=0"`
	Password       string `form:"password" binding:"required"`
}

// Signup registers a student from a multipart form with an id_card image.
func (h *Handler) Signup(c *gin.Context) {
	var req signupForm
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": FormatBindingError(err)})
		return
	}

	header, err := c.FormFile("id_card")
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Field 'id_card' is required"})
		return
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read id card"})
		return
	}
	defer file.Close()

	// one byte past the limit is enough to reject oversized cards
	data, err := io.ReadAll(io.LimitReader(file, directory.MaxIDCardBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read id card"})
		return
	}

	student, err := h.Directory.Signup(c.Request.Context(), directory.SignupInput{
		Name:           req.Name,
		RegisterNumber: req.RegisterNumber,
		CollegeID:      req.CollegeID,
		CourseID:       req.CourseID,
		Password:       req.Password,
	}, directory.IDCard{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		if directory.IsSignupRejection(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Printf("signup %s failed: %v", req.RegisterNumber, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
		return
	}
	c.JSON(http.StatusCreated, student)
}

type tokenRequest struct {
	Username       string `form:"username" json:"username"`
	RegisterNumber string `form:"register_number" json:"register_number"`
	Password       string `form:"password" json:"password" binding:"required"`
}

// Token exchanges a register number and password for an access token. The
// token is returned in the body and set as the access_token cookie.
func (h *Handler) Token(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": FormatBindingError(err)})
		return
	}
	username := req.Username
	if username == "" {
		username = req.RegisterNumber
	}
	if username == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Field 'username' is required"})
		return
	}

	student, err := h.Directory.Authenticate(c.Request.Context(), username, req.Password)
	if errors.Is(err, directory.ErrInvalidCredentials) {
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Incorrect register number or password"})
		return
	}
	if err != nil {
		log.Printf("login %s failed: %v", username, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
		return
	}

	tok, err := h.Issuer.Issue(student.ID)
	if err != nil {
		log.Printf("token issue for student %d failed: %v", student.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}

	maxAge := int(h.Issuer.TTL().Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.CookieName, "Bearer "+tok.AccessToken, maxAge, "/", "", h.CookieSecure, true)
	c.JSON(http.StatusOK, gin.H{
		"access_token": tok.AccessToken,
		"token_type":   tok.TokenType,
		"expires_at":   tok.ExpiresAt.Unix(),
	})
}

// Me returns the signed-in student with college and course.
func (h *Handler) Me(c *gin.Context) {
	studentID, _ := auth.StudentID(c)
	profile, err := h.Directory.Profile(c.Request.Context(), studentID)
	if errors.Is(err, directory.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
		return
	}
	if err != nil {
		log.Printf("profile for student %d failed: %v", studentID, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
		return
	}
	c.JSON(http.StatusOK, profile)
}
