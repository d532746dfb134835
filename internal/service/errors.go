package service

import (
	"context"
	"database/sql"
	"errors"

	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

func validationError(err error, message string) *appErrors.Error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}

// storageError keeps caller cancellation distinct from a failing store so the
// former is never reported as retryable.
func storageError(err error, message string) *appErrors.Error {
	if errors.Is(err, context.Canceled) {
		return appErrors.Wrap(err, appErrors.ErrCanceled.Code, appErrors.ErrCanceled.Status, appErrors.ErrCanceled.Message)
	}
	return appErrors.Storage(err, message)
}

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
