package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Is(t *testing.T) {
	t.Run("matches sentinel by code", func(t *testing.T) {
		err := NotFoundf("harvest %s not found", "h-1")
		assert.True(t, errors.Is(err, ErrNotFound))
		assert.False(t, errors.Is(err, ErrPermissionDenied))
	})

	t.Run("matches through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("load scope: %w", PermissionDeniedf("not your orchard"))
		assert.True(t, errors.Is(err, ErrPermissionDenied))
	})

	t.Run("unwraps cause", func(t *testing.T) {
		cause := errors.New("template exploded")
		err := WrapDomainError(CodeRenderError, "render document", cause)
		assert.True(t, errors.Is(err, cause))
		assert.True(t, errors.Is(err, ErrRenderError))
		assert.Equal(t, "render document: template exploded", err.Error())
	})
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, CodeInvalidParameter, ErrorCode(InvalidParameterf("bad")))
	assert.Equal(t, "", ErrorCode(errors.New("plain")))
	assert.Equal(t, CodeComputeError, ErrorCode(fmt.Errorf("x: %w", ErrComputeError)))
}

func TestIsClientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"not found", ErrNotFound, true},
		{"permission denied", ErrPermissionDenied, true},
		{"invalid parameter", ErrInvalidParameter, true},
		{"unsupported format", ErrUnsupportedFormat, true},
		{"render error", ErrRenderError, false},
		{"compute error", ErrComputeError, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsClientError(tt.err))
		})
	}
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "Failed to compute report", ErrorMessage(CodeComputeError))
	assert.Equal(t, "An unexpected error occurred", ErrorMessage("SOMETHING"))
}
