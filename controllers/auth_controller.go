package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/hoppin/utils"
)

// AuthController exposes the caller's identity. Tokens are issued elsewhere.
type AuthController struct{}

// NewAuthController creates a new controller instance.
func NewAuthController() *AuthController {
	return &AuthController{}
}

// Me echoes the authenticated user id.
func (a *AuthController) Me(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}
	utils.Success(ctx, gin.H{"user_id": userID})
}
