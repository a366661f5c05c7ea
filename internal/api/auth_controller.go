package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"giftspa/server/internal/services"
)

// AuthController вход администраторов
type AuthController struct {
	auth *services.AuthService
}

func NewAuthController(auth *services.AuthService) *AuthController {
	return &AuthController{auth: auth}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login POST /api/auth/login
func (ac *AuthController) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Неверные параметры запроса",
			"details": err.Error(),
		})
		return
	}

	result, err := ac.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Me GET /api/auth/me
func (ac *AuthController) Me(c *gin.Context) {
	actor, _ := actorFrom(c)
	c.JSON(http.StatusOK, gin.H{
		"id":        actor.UserID,
		"email":     actor.Email,
		"role":      actor.Role,
		"companyId": actor.CompanyID,
	})
}
