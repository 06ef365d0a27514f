package router

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("decide: %w", ErrNoCandidates), CodeNoCandidates},
		{ErrContextUnavailable, CodeContextUnavailable},
		{&SelectionError{ArmID: "a", RequestKey: "k", Reason: "nan"}, CodeSelectionFailed},
		{fmt.Errorf("%w %q", ErrUnknownDecision, "x"), CodeUnknownDecision},
		{ErrDuplicateReward, CodeDuplicateReward},
		{ErrInvalidReward, CodeInvalidReward},
		{ErrUnknownArm, CodeUnknownArm},
		{fmt.Errorf("%w: %w", errCanceled, context.Canceled), CodeCanceled},
		{errors.New("boom"), CodeUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorCode(tt.err), "%v", tt.err)
	}
}

func TestSelectionError_MessageAndUnwrap(t *testing.T) {
	err := error(&SelectionError{ArmID: "arm-1", RequestKey: "req-9", Reason: "no finite score"})

	assert.True(t, errors.Is(err, ErrSelectionFailed))
	assert.Contains(t, err.Error(), "arm-1")
	assert.Contains(t, err.Error(), "req-9")
	assert.Contains(t, err.Error(), "no finite score")
}
