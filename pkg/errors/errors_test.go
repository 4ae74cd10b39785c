package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneKeepsKind(t *testing.T) {
	err := Clone(ErrUnknownCourse, "course TI999 not found")
	assert.True(t, errors.Is(err, ErrUnknownCourse))
	assert.False(t, errors.Is(err, ErrUnknownStudent))
	assert.Equal(t, "course not found", ErrUnknownCourse.Message)

	wrapped := fmt.Errorf("enroll: %w", err)
	assert.True(t, errors.Is(wrapped, ErrUnknownCourse))
}

func TestRejectionDetails(t *testing.T) {
	credit := CreditCapExceeded(25, 24)
	assert.Equal(t, "credit cap exceeded: 25 > 24", credit.Message)
	assert.Equal(t, http.StatusUnprocessableEntity, credit.Status)
	assert.Equal(t, map[string]interface{}{"requested_total": 25, "max_credits": 24}, credit.Details)

	seats := CapacityExceeded(40, 40)
	assert.True(t, errors.Is(seats, ErrCapacityExceeded))
	assert.Equal(t, 40, seats.Details["consumed_seats"])
	assert.Nil(t, ErrCapacityExceeded.Details)
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	raw := errors.New("connection refused")
	e := FromError(raw)
	assert.Equal(t, ErrInternal.Code, e.Code)
	assert.ErrorIs(t, e, raw)

	assert.Same(t, ErrNotEnrolled, FromError(ErrNotEnrolled))
}
