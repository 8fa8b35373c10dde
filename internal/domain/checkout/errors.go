package checkout

import (
	stderrors "errors"
	"fmt"
	"net/http"

	apperrors "github.com/goliatone/go-errors"
	"github.com/labstack/echo/v4"

	"github.com/ehr/telehealth/internal/domain/subscription"
	"github.com/ehr/telehealth/internal/domain/workflow"
)

const (
	ErrCodeDuplicateCheckout = "DUPLICATE_CHECKOUT"
	ErrCodeInvalidCheckout   = "INVALID_CHECKOUT"
)

var (
	ErrDuplicateCheckout = apperrors.New("checkout session already used", apperrors.CategoryConflict).
				WithTextCode(ErrCodeDuplicateCheckout)
	ErrInvalidCheckout = apperrors.New("invalid checkout request", apperrors.CategoryValidation).
				WithTextCode(ErrCodeInvalidCheckout)
)

func duplicateCheckout(sessionID, bundleID string) error {
	err := ErrDuplicateCheckout.Clone()
	err.Message = fmt.Sprintf("session %s already produced a bundle", sessionID)
	return err.WithMetadata(map[string]any{
		"session_id": sessionID,
		"bundle_id":  bundleID,
	})
}

func invalidCheckout(format string, args ...any) error {
	err := ErrInvalidCheckout.Clone()
	err.Message = fmt.Sprintf(format, args...)
	return err
}

// ExistingBundleID returns the bundle id carried by a duplicate checkout
// error. It is empty while the first checkout is still running.
func ExistingBundleID(err error) string {
	var ge *apperrors.Error
	if !stderrors.As(err, &ge) || ge.TextCode != ErrCodeDuplicateCheckout {
		return ""
	}
	id, _ := ge.Metadata["bundle_id"].(string)
	return id
}

func httpError(err error) *echo.HTTPError {
	switch workflow.ErrorCode(err) {
	case ErrCodeDuplicateCheckout:
		return echo.NewHTTPError(http.StatusConflict, map[string]any{
			"error":     err.Error(),
			"code":      ErrCodeDuplicateCheckout,
			"bundle_id": ExistingBundleID(err),
		})
	case ErrCodeInvalidCheckout:
		return echo.NewHTTPError(http.StatusBadRequest, map[string]any{
			"error": err.Error(),
			"code":  ErrCodeInvalidCheckout,
		})
	case subscription.ErrCodePlanNotFound:
		return echo.NewHTTPError(http.StatusUnprocessableEntity, map[string]any{
			"error": err.Error(),
			"code":  subscription.ErrCodePlanNotFound,
		})
	case workflow.ErrCodeBundleCreationFailed:
		return echo.NewHTTPError(http.StatusInternalServerError, map[string]any{
			"error": err.Error(),
			"code":  workflow.ErrCodeBundleCreationFailed,
		})
	}
	return workflow.HTTPError(err)
}
