package ir

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorPredicates(t *testing.T) {
	tests := []struct {
		name string
		err  error
		is   func(error) bool
		code ErrorCode
	}{
		{"not found", NotFound("task", "t-1"), IsNotFound, ErrCodeNotFound},
		{"invalid", InvalidDefinition("k", []string{"E205: no start"}), IsInvalidDefinition, ErrCodeInvalidDefinition},
		{"ambiguous", AmbiguousResult("task", 2), IsAmbiguous, ErrCodeAmbiguousResult},
		{"completed", AlreadyCompleted("t-1"), IsAlreadyCompleted, ErrCodeAlreadyCompleted},
		{"instance completed", AlreadyCompletedInstance("p-1"), IsAlreadyCompleted, ErrCodeAlreadyCompleted},
		{"quota", QuotaExceeded("i-1", 10), IsQuotaExceeded, ErrCodeQuotaExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("complete task: %w", tt.err)
			assert.True(t, tt.is(tt.err))
			assert.True(t, tt.is(wrapped), "predicates must see through wrapping")
			assert.Equal(t, tt.code, CodeOf(wrapped))
		})
	}
}

func TestErrorPredicatesRejectOtherErrors(t *testing.T) {
	plain := errors.New("boom")
	assert.False(t, IsNotFound(plain))
	assert.False(t, IsAlreadyCompleted(NotFound("task", "t-1")))
	assert.Equal(t, ErrorCode(""), CodeOf(plain))
	assert.False(t, IsNotFound(nil))
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "NOT_FOUND: task not found (task=t-1)", NotFound("task", "t-1").Error())
	assert.Equal(t,
		"INVALID_DEFINITION: invalid process definition (definition=k): E205: a; E206: b",
		InvalidDefinition("k", []string{"E205: a", "E206: b"}).Error())
	assert.Equal(t,
		"AMBIGUOUS_RESULT: query expected a single task but matched 2",
		AmbiguousResult("task", 2).Error())
}
