package subscription

import (
	stderrors "errors"
	"fmt"
	"net/http"

	apperrors "github.com/goliatone/go-errors"
	"github.com/labstack/echo/v4"
)

const (
	ErrCodeNotFound            = "SUBSCRIPTION_NOT_FOUND"
	ErrCodePlanNotFound        = "PLAN_NOT_FOUND"
	ErrCodeInvalidModification = "INVALID_MODIFICATION"
	ErrCodeStoreUnavailable    = "COLLABORATOR_UNAVAILABLE"
)

var (
	ErrNotFound = apperrors.New("subscription not found", apperrors.CategoryBadInput).
			WithTextCode(ErrCodeNotFound)
	ErrPlanNotFound = apperrors.New("plan not found", apperrors.CategoryBadInput).
			WithTextCode(ErrCodePlanNotFound)
	ErrInvalidModification = apperrors.New("invalid modification", apperrors.CategoryValidation).
				WithTextCode(ErrCodeInvalidModification)
	ErrStoreUnavailable = apperrors.New("record store unavailable", apperrors.CategoryExternal).
				WithTextCode(ErrCodeStoreUnavailable)
)

func withMessage(base *apperrors.Error, msg string, source error) *apperrors.Error {
	err := base.Clone()
	err.Message = msg
	if source != nil {
		err.Source = source
	}
	return err
}

func notFound(id string) error {
	return withMessage(ErrNotFound, fmt.Sprintf("subscription %s not found", id), nil)
}

func planNotFound(id string) error {
	return withMessage(ErrPlanNotFound, fmt.Sprintf("plan %s not found", id), nil)
}

func invalidModification(format string, args ...any) error {
	return withMessage(ErrInvalidModification, fmt.Sprintf(format, args...), nil)
}

func storeUnavailable(op string, err error) error {
	return withMessage(ErrStoreUnavailable, op+" failed", err)
}

func ErrorCode(err error) string {
	var ge *apperrors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

func httpError(err error) *echo.HTTPError {
	status := http.StatusInternalServerError
	switch ErrorCode(err) {
	case ErrCodeNotFound, ErrCodePlanNotFound:
		status = http.StatusNotFound
	case ErrCodeInvalidModification:
		status = http.StatusUnprocessableEntity
	case ErrCodeStoreUnavailable:
		status = http.StatusBadGateway
	}
	return echo.NewHTTPError(status, map[string]any{"error": err.Error(), "code": ErrorCode(err)})
}
