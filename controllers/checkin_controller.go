package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/hoppin/ledger"
	"github.com/cppla/hoppin/models"
	"github.com/cppla/hoppin/utils"
)

// CheckInController handles the daily streak endpoints.
type CheckInController struct {
	ledger *ledger.Ledger
}

// NewCheckInController creates a new controller instance.
func NewCheckInController(l *ledger.Ledger) *CheckInController {
	return &CheckInController{ledger: l}
}

type streakResponse struct {
	models.StreakState
	Result  string `json:"result,omitempty"`
	Changed bool   `json:"changed"`
}

func newStreakResponse(ci ledger.CheckIn) streakResponse {
	return streakResponse{StreakState: ci.After, Result: string(ci.Result), Changed: ci.Changed()}
}

// DailyCheckIn advances the caller's streak for today. Checking in twice on the
// same day succeeds and reports changed=false.
func (c *CheckInController) DailyCheckIn(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}

	ci, err := c.ledger.DailyCheckIn(ctx.Request.Context(), userID)
	if err != nil {
		respondLedgerError(ctx, err, utils.CodeInternal+30, "failed to record check-in")
		return
	}
	utils.Success(ctx, newStreakResponse(ci))
}

// Streak returns the caller's current and best streak.
func (c *CheckInController) Streak(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}

	s, err := c.ledger.Streak(ctx.Request.Context(), userID)
	if err != nil {
		respondLedgerError(ctx, err, utils.CodeInternal+31, "failed to load streak")
		return
	}
	utils.Success(ctx, s)
}
