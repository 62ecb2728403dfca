package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHelpers_WrapThroughFmt(t *testing.T) {
	wrapped := fmt.Errorf("loading: %w", ItemNotFound("i_1"))
	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsAlreadyExists(wrapped))

	var nf *NotFoundError
	assert.True(t, errors.As(wrapped, &nf))
	assert.Equal(t, "item", nf.Resource)
}

func TestInvalidMoveError(t *testing.T) {
	err := PolicyViolation("i_1", "group Lost does not release items")
	assert.True(t, IsInvalidMove(err))
	assert.False(t, IsNotFound(err))
	assert.Equal(t, "invalid move of i_1: group Lost does not release items", err.Error())

	withCause := &InvalidMoveError{ItemID: "i_1", Reason: "unknown group", Cause: GroupNotFound("g_9", "sales")}
	assert.True(t, IsInvalidMove(withCause))
	assert.True(t, IsNotFound(withCause))
}

func TestPersistenceError(t *testing.T) {
	cause := errors.New("connection refused")
	err := &PersistenceError{BatchID: "b1", Err: cause}

	assert.True(t, IsPersistence(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "batch b1")
}

func TestValidationError_Message(t *testing.T) {
	assert.Equal(t, "invalid position: -1", InvalidField("position", "-1").Error())
	assert.Equal(t, "bad", (&ValidationError{Message: "bad"}).Error())
	assert.True(t, IsValidationError(InvalidField("x", "y")))
}

func TestNotInitializedError(t *testing.T) {
	err := &NotInitializedError{Path: "/tmp/p"}
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.Contains(t, err.Error(), "/tmp/p")
}
