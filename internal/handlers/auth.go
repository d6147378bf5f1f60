package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	iauth "github.com/openwave-labs/openwave/internal/auth"
	"github.com/openwave-labs/openwave/internal/services"
	"github.com/openwave-labs/openwave/pkg/errors"
	"github.com/openwave-labs/openwave/pkg/response"
)

// AuthHandler manages the authentication surface (login/me).
type AuthHandler struct {
	users *services.UserService
	jwt   *iauth.JWTService
}

func NewAuthHandler(users *services.UserService, jwt *iauth.JWTService) *AuthHandler {
	return &AuthHandler{users: users, jwt: jwt}
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Authenticate(requestContext(c), req.Username, req.Password)
	if err != nil {
		// Normalise auth errors to 401
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	token, err := h.jwt.GenerateAccessToken(iauth.AccessTokenInput{UserID: user.ID})
	if err != nil {
		response.Error(c, errors.ErrInternalServer)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"access_token": token,
		"user": gin.H{
			"id":           user.ID,
			"username":     user.Username,
			"email":        user.Email,
			"profile_name": user.DisplayName(),
			"avatar":       user.Avatar,
			"is_active":    user.IsActive,
		},
	})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	user, err := h.users.Lookup(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"id":           user.ID,
		"username":     user.Username,
		"email":        user.Email,
		"profile_name": user.DisplayName(),
		"avatar":       user.Avatar,
		"is_observer":  user.IsObserver,
	})
}
