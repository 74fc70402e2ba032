package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/hoppin/ledger"
	"github.com/cppla/hoppin/middleware"
	"github.com/cppla/hoppin/store"
	"github.com/cppla/hoppin/utils"
)

// respondLedgerError maps ledger and store failures onto the response envelope.
// code is the handler's own code for unexpected failures.
func respondLedgerError(ctx *gin.Context, err error, code int, message string) {
	switch {
	case errors.Is(err, ledger.ErrInvalidUser):
		utils.Error(ctx, http.StatusBadRequest, utils.CodeBadRequest+1, err.Error())
	case errors.Is(err, store.ErrTooManyAttempts):
		utils.Error(ctx, http.StatusServiceUnavailable, utils.CodeStoreConflict, "too much contention, try again")
	default:
		utils.Error(ctx, http.StatusInternalServerError, code, message)
	}
	_ = ctx.Error(err)
}

// getUserID returns the authenticated user or writes a 401.
func getUserID(ctx *gin.Context) (string, bool) {
	userID := middleware.CurrentUserID(ctx)
	if userID == "" {
		utils.Error(ctx, http.StatusUnauthorized, utils.CodeUnauthorized+10, "unauthorized")
		return "", false
	}
	return userID, true
}
