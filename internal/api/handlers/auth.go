package handlers

import (
	"net/http"
	"os"
	"time"

	"github.com/coursereg/registrar/internal/api/middleware"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler issues admin JWTs, adapted from the teacher's
// UsersHandler.Login (internal/api/handlers/user.go): same bcrypt-compare
// + jwt.NewWithClaims(HS256) shape, narrowed to the single admin role this
// engine's gating middleware checks (openBooking/closeBooking), since the
// course registration endpoints themselves (apply/bookSeat/drop/...) are
// identified by studentId in the body, not a bearer token.
type AuthHandler struct {
	adminEmail      string
	adminPassHash   []byte
	jwtSecret       string
}

// NewAuthHandler reads the admin credential from the environment
// (ADMIN_EMAIL, ADMIN_PASSWORD_HASH — a bcrypt hash), matching the
// teacher's fail-soft-to-a-default-secret pattern for JWT_SECRET.
func NewAuthHandler(jwtSecret string) *AuthHandler {
	return &AuthHandler{
		adminEmail:    os.Getenv("ADMIN_EMAIL"),
		adminPassHash: []byte(os.Getenv("ADMIN_PASSWORD_HASH")),
		jwtSecret:     jwtSecret,
	}
}

type adminLoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type adminLoginResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

func (h *AuthHandler) AdminLogin(c *gin.Context) {
	var req adminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}

	if h.adminEmail == "" || len(h.adminPassHash) == 0 || req.Email != h.adminEmail {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if err := bcrypt.CompareHashAndPassword(h.adminPassHash, []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	expiration := time.Now().Add(12 * time.Hour)
	claims := jwt.MapClaims{
		"sub":  "admin",
		"role": middleware.AdminRole,
		"iat":  time.Now().Unix(),
		"exp":  expiration.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(h.jwtSecret))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, adminLoginResponse{Token: signed, Role: middleware.AdminRole})
}
