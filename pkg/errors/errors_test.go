package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorKeepsTypedError(t *testing.T) {
	err := fmt.Errorf("outer: %w", Clone(ErrReferential, "room r-1 not found"))

	appErr := FromError(err)
	assert.Equal(t, ErrReferential.Code, appErr.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, appErr.Status)
	assert.Equal(t, "room r-1 not found", appErr.Message)
}

func TestFromErrorWrapsUnknownAsInternal(t *testing.T) {
	appErr := FromError(stdErrors.New("boom"))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.EqualError(t, appErr, "internal server error: boom")
}

func TestIsMatchesByCode(t *testing.T) {
	err := Wrap(stdErrors.New("redis nil"), ErrCacheMiss.Code, ErrCacheMiss.Status, "miss")
	assert.True(t, stdErrors.Is(err, ErrCacheMiss))
	assert.False(t, stdErrors.Is(err, ErrNotFound))
}

func TestWithDetailsDoesNotMutatePredefined(t *testing.T) {
	detailed := WithDetails(ErrConflict, "schedule conflicts detected", []string{"c-1"})
	assert.Equal(t, []string{"c-1"}, detailed.Details)
	assert.Nil(t, ErrConflict.Details)
	assert.Equal(t, "conflict", ErrConflict.Message)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Storage(stdErrors.New("conn reset"), "failed to load entries").Retryable())
	assert.True(t, Clone(ErrLockTimeout, "").Retryable())
	assert.False(t, Clone(ErrValidation, "").Retryable())
}
