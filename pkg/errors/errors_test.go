package errors

import (
	"database/sql"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneKeepsCodeAndMatchesSentinel(t *testing.T) {
	err := Clone(ErrDuplicateDecision, "already decided")
	require.Equal(t, "already decided", err.Message)
	assert.True(t, errors.Is(err, ErrDuplicateDecision))
	assert.False(t, errors.Is(err, ErrConflict))
}

func TestWithDetailsDoesNotMutateSentinel(t *testing.T) {
	err := WithDetails(ErrUnauthorizedApprover, map[string]interface{}{"requestId": "req-1"})
	require.Equal(t, "req-1", err.Details["requestId"])
	assert.Nil(t, ErrUnauthorizedApprover.Details)

	again := WithDetails(err, map[string]interface{}{"entity": "finance"})
	assert.Len(t, again.Details, 2)
	assert.Len(t, err.Details, 1)
}

func TestUnavailableIsRetryable(t *testing.T) {
	err := Unavailable(sql.ErrConnDone, "")
	assert.Equal(t, http.StatusServiceUnavailable, err.Status)
	assert.True(t, err.Retryable())
	assert.True(t, errors.Is(err, sql.ErrConnDone))
	assert.False(t, ErrConflict.Retryable())
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	err := FromError(errors.New("boom"))
	assert.Equal(t, ErrInternal.Code, err.Code)
	assert.Nil(t, FromError(nil))
}
