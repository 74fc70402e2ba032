package ledger

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

type visitInput struct {
	UserID     string `validate:"required"`
	PlaceID    string `validate:"required"`
	CategoryID int    `validate:"min=1,max=8"`
}

func validVisit(userID, placeID string, categoryID int) bool {
	return getValidator().Struct(visitInput{
		UserID:     userID,
		PlaceID:    placeID,
		CategoryID: categoryID,
	}) == nil
}
