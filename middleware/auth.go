package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/hoppin/utils"
)

// ContextUserIDKey is the key used to store the authenticated user ID in Gin context.
const ContextUserIDKey = "user_id"

// AuthRequired ensures the request carries a bearer JWT signed with secret.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")
		if authHeader == "" {
			utils.Abort(ctx, http.StatusUnauthorized, utils.CodeUnauthorized+1, "authorization header missing")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			utils.Abort(ctx, http.StatusUnauthorized, utils.CodeUnauthorized+2, "invalid authorization header format")
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			utils.Abort(ctx, http.StatusUnauthorized, utils.CodeUnauthorized+3, "empty bearer token")
			return
		}

		claims, err := utils.ParseToken(secret, tokenString)
		if err != nil {
			utils.Abort(ctx, http.StatusUnauthorized, utils.CodeUnauthorized+5, "invalid token")
			return
		}

		ctx.Set(ContextUserIDKey, claims.UserID())
		ctx.Next()
	}
}

// CurrentUserID returns the user set by AuthRequired, or "".
func CurrentUserID(ctx *gin.Context) string {
	return ctx.GetString(ContextUserIDKey)
}
