package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/hoppin/geo"
	"github.com/cppla/hoppin/ledger"
	"github.com/cppla/hoppin/models"
	"github.com/cppla/hoppin/utils"
)

// VisitController handles visit recording and progress endpoints.
type VisitController struct {
	ledger *ledger.Ledger
	radius float64
	log    *zap.Logger
}

// NewVisitController creates a controller that accepts visits reported within
// radiusMeters of the place.
func NewVisitController(l *ledger.Ledger, radiusMeters float64, log *zap.Logger) *VisitController {
	if log == nil {
		log = zap.NewNop()
	}
	return &VisitController{ledger: l, radius: radiusMeters, log: log}
}

type recordVisitRequest struct {
	PlaceID    string   `json:"place_id"`
	CategoryID int      `json:"category_id"`
	PlaceLat   *float64 `json:"place_lat"`
	PlaceLng   *float64 `json:"place_lng"`
	UserLat    *float64 `json:"user_lat"`
	UserLng    *float64 `json:"user_lng"`
}

var errPartialCoordinates = errors.New("place_lat, place_lng, user_lat and user_lng must be sent together")

// positions returns the place and user points, or ok=false when the request
// carries no coordinates.
func (r recordVisitRequest) positions() (place, user geo.Point, ok bool, err error) {
	coords := []*float64{r.PlaceLat, r.PlaceLng, r.UserLat, r.UserLng}
	set := 0
	for _, c := range coords {
		if c != nil {
			set++
		}
	}
	switch set {
	case 0:
		return place, user, false, nil
	case len(coords):
	default:
		return place, user, false, errPartialCoordinates
	}

	place = geo.Point{Lat: *r.PlaceLat, Lng: *r.PlaceLng}
	user = geo.Point{Lat: *r.UserLat, Lng: *r.UserLng}
	if !place.Valid() || !user.Valid() {
		return place, user, false, errors.New("coordinates out of range")
	}
	return place, user, true, nil
}

type visitResponse struct {
	Status         ledger.VisitStatus `json:"status"`
	Date           string             `json:"date,omitempty"`
	CategoryID     int                `json:"category_id"`
	Visits         int64              `json:"visits,omitempty"`
	BadgeTier      int                `json:"badge_tier,omitempty"`
	BadgeName      string             `json:"badge_name,omitempty"`
	TierUp         bool               `json:"tier_up"`
	StreakAdvanced bool               `json:"streak_advanced"`
	Streak         *streakResponse    `json:"streak,omitempty"`
}

// RecordVisit records a visit to a place and, when it is the first one of the
// day for that place, advances the caller's daily streak. Ignored and duplicate
// visits are not errors; their status is in the response body.
func (v *VisitController) RecordVisit(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}

	var req recordVisitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, utils.CodeBadRequest+10, "invalid request body")
		return
	}

	place, user, hasCoords, err := req.positions()
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, utils.CodeBadRequest+11, err.Error())
		return
	}
	if hasCoords {
		if d := geo.Distance(place, user); d > v.radius {
			v.log.Debug("visit rejected, too far from place",
				zap.String("user_id", userID),
				zap.String("place_id", req.PlaceID),
				zap.Float64("distance_m", d),
			)
			utils.Error(ctx, http.StatusUnprocessableEntity, utils.CodeTooFar, "too far from place")
			return
		}
	}

	out, err := v.ledger.RecordVisit(ctx.Request.Context(), userID, req.PlaceID, req.CategoryID)
	if err != nil && !errors.Is(err, ledger.ErrStreakNotAdvanced) {
		respondLedgerError(ctx, err, utils.CodeInternal+20, "failed to record visit")
		return
	}

	resp := visitResponse{
		Status:     out.Status,
		Date:       out.Date,
		CategoryID: out.CategoryID,
		Visits:     out.Visits,
		BadgeTier:  out.BadgeTier,
		BadgeName:  ledger.TierName(out.BadgeTier),
		TierUp:     out.TierUp,
	}
	if out.CheckIn != nil {
		s := newStreakResponse(*out.CheckIn)
		resp.StreakAdvanced = out.CheckIn.Changed()
		resp.Streak = &s
	}
	utils.Success(ctx, resp)
}

type categoryProgressResponse struct {
	CategoryID    int    `json:"category_id"`
	Visits        int64  `json:"visits"`
	BadgeTier     int    `json:"badge_tier"`
	BadgeName     string `json:"badge_name,omitempty"`
	NextThreshold *int64 `json:"next_threshold,omitempty"`
}

// Progress lists the caller's visit counts and badges for every category.
func (v *VisitController) Progress(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}

	p, err := v.ledger.Progress(ctx.Request.Context(), userID)
	if err != nil {
		respondLedgerError(ctx, err, utils.CodeInternal+21, "failed to load progress")
		return
	}

	categories := make([]categoryProgressResponse, 0, models.MaxCategory)
	for c := models.MinCategory; c <= models.MaxCategory; c++ {
		item := categoryProgressResponse{
			CategoryID: c,
			Visits:     p.Visits[c],
			BadgeTier:  p.BadgeTiers[c],
			BadgeName:  ledger.TierName(p.BadgeTiers[c]),
		}
		if next, ok := ledger.NextThreshold(p.Visits[c]); ok {
			item.NextThreshold = &next
		}
		categories = append(categories, item)
	}
	utils.Success(ctx, gin.H{"categories": categories})
}
