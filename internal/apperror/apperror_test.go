package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("check in: %w", New(CodeAlreadyCheckedIn, "Member already checked in"))
	assert.ErrorIs(t, err, ErrAlreadyCheckedIn)
	assert.NotErrorIs(t, err, ErrNotCheckedIn)

	// Both identifier sentinels share a code.
	assert.ErrorIs(t, ErrInvalidMemberID, ErrInvalidEventID)
}

func TestError_WrapAndUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := StoreWrite(cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrStoreWrite)
	assert.Equal(t, "Failed to write to the store: disk full", err.Error())
	assert.Equal(t, CodeStoreWriteError, CodeOf(err))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeInvalidEmail, CodeOf(ErrInvalidEmail))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
	assert.Equal(t, CodeEventNotFound, CodeOf(fmt.Errorf("x: %w", ErrEventNotFound)))
}

func TestRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Wrap(CodeFetchError, "Failed to fetch external events", errors.New("timeout"))))
	assert.True(t, IsRetryable(ErrSyncInProgress))
	assert.False(t, IsRetryable(ErrInvalidName))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestMessages(t *testing.T) {
	assert.Equal(t, "Invalid event ID", ErrInvalidEventID.Error())
	assert.Equal(t, "Event does not exist", ErrEventNotFound.Error())
	assert.Equal(t, "Member does not exist", ErrPersonNotFound.Error())
	assert.Equal(t, "Member is not checked in to this event", ErrNotCheckedIn.Error())
	assert.Equal(t, "A member with a different name is associated with this email", ErrEmailNameMismatch.Error())
}
