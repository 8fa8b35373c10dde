package workflow

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	apperrors "github.com/goliatone/go-errors"
	"github.com/labstack/echo/v4"
)

const (
	ErrCodeNotFound                = "ORDER_NOT_FOUND"
	ErrCodeInvalidTransition       = "INVALID_TRANSITION"
	ErrCodeAlreadyTerminal         = "ALREADY_TERMINAL"
	ErrCodeBundleCreationFailed    = "BUNDLE_CREATION_FAILED"
	ErrCodeCollaboratorUnavailable = "COLLABORATOR_UNAVAILABLE"
)

var (
	ErrNotFound = apperrors.New("record not found", apperrors.CategoryBadInput).
			WithTextCode(ErrCodeNotFound)
	ErrInvalidTransition = apperrors.New("invalid transition", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeInvalidTransition)
	// ErrAlreadyTerminal is only surfaced to callers that need an error value;
	// the engine reports it through Transition.AlreadyTerminal.
	ErrAlreadyTerminal = apperrors.New("order is already in a terminal state", apperrors.CategoryConflict).
				WithTextCode(ErrCodeAlreadyTerminal)
	ErrBundleCreationFailed = apperrors.New("order bundle creation failed", apperrors.CategoryHandler).
				WithTextCode(ErrCodeBundleCreationFailed)
	ErrCollaboratorUnavailable = apperrors.New("collaborator unavailable", apperrors.CategoryExternal).
					WithTextCode(ErrCodeCollaboratorUnavailable)
)

func cloneError(base *apperrors.Error, message string, source error, metadata map[string]any) *apperrors.Error {
	err := base.Clone()
	if text := strings.TrimSpace(message); text != "" {
		err.Message = text
	}
	if source != nil {
		err.Source = source
	}
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// NotFound reports a missing record of the given kind.
func NotFound(kind, id string) error {
	return cloneError(ErrNotFound, fmt.Sprintf("%s %s not found", kind, id), nil, map[string]any{
		"kind": kind,
		"id":   id,
	})
}

func invalidTransition(orderID string, from, to Status) error {
	return cloneError(ErrInvalidTransition, fmt.Sprintf("cannot move order from %s to %s", from, to), nil, map[string]any{
		"order_id": orderID,
		"from":     string(from),
		"to":       string(to),
	})
}

// CollaboratorUnavailable wraps a failed record store or external call.
func CollaboratorUnavailable(op string, err error) error {
	return cloneError(ErrCollaboratorUnavailable, op+" failed", err, map[string]any{
		"operation": op,
		"cause":     fmt.Sprint(err),
	})
}

// BundleCreationFailed wraps the cause of a failed checkout after its
// partial records were cleaned up.
func BundleCreationFailed(bundleID string, err error) error {
	return cloneError(ErrBundleCreationFailed, "", err, map[string]any{
		"bundle_id": bundleID,
		"cause":     fmt.Sprint(err),
	})
}

// ErrorCode returns the text code of err, or "" for errors outside the
// workflow taxonomy.
func ErrorCode(err error) string {
	var ge *apperrors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

func IsNotFound(err error) bool {
	return ErrorCode(err) == ErrCodeNotFound
}

func IsInvalidTransition(err error) bool {
	return ErrorCode(err) == ErrCodeInvalidTransition
}

// HTTPStatus maps a workflow error to the status handlers respond with.
func HTTPStatus(err error) int {
	switch ErrorCode(err) {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeInvalidTransition:
		return http.StatusUnprocessableEntity
	case ErrCodeAlreadyTerminal:
		return http.StatusConflict
	case ErrCodeCollaboratorUnavailable:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// HTTPError converts err into an echo error carrying its text code.
func HTTPError(err error) *echo.HTTPError {
	body := map[string]any{"error": err.Error()}
	if code := ErrorCode(err); code != "" {
		body["code"] = code
	}
	return echo.NewHTTPError(HTTPStatus(err), body)
}
