package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntakeError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *IntakeError
		want string
	}{
		{
			name: "with module",
			err:  NotFound("session", "session not found"),
			want: "session: session not found",
		},
		{
			name: "without module",
			err:  Validation("", "no valid files"),
			want: "no valid files",
		},
		{
			name: "internal includes cause",
			err:  Wrap(fs.ErrPermission, "session", "failed to save metadata"),
			want: "session: failed to save metadata: permission denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestWrap_PreservesCategory(t *testing.T) {
	inner := NotFound("session", "session not found").WithContext("session_id", "abc")
	wrapped := Wrap(fmt.Errorf("load: %w", inner), "intake", "upload failed")

	require.NotNil(t, wrapped)
	assert.Equal(t, CategoryNotFound, wrapped.Category)
	assert.Equal(t, "session not found", wrapped.Message)
	assert.Equal(t, "abc", ContextOf(wrapped)["session_id"])
	assert.True(t, IsNotFound(wrapped))
}

func TestWrap_Nil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "intake", "nothing"))
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, CategoryInternal, CategoryOf(errors.New("plain")))
	assert.Equal(t, CategoryValidation, CategoryOf(Validationf("upload", "no file in %d slots", 4)))
	assert.Equal(t, CategoryPayloadTooLarge, CategoryOf(fmt.Errorf("x: %w", PayloadTooLarge("upload", "too big"))))
}

func TestIntakeError_Is(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NotFound("session", "gone"))

	assert.True(t, errors.Is(err, &IntakeError{Category: CategoryNotFound}))
	assert.True(t, errors.Is(err, &IntakeError{Category: CategoryNotFound, Module: "session"}))
	assert.False(t, errors.Is(err, &IntakeError{Category: CategoryNotFound, Module: "analysis"}))
	assert.False(t, errors.Is(err, &IntakeError{Category: CategoryValidation}))
}

func TestUnwrap(t *testing.T) {
	err := Wrap(fs.ErrNotExist, "session", "read metadata")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestMessageOf(t *testing.T) {
	assert.Equal(t, "failed to save", MessageOf(Wrap(errors.New("disk full"), "session", "failed to save")))
	assert.Equal(t, "session not found", MessageOf(fmt.Errorf("load: %w", NotFound("session", "session not found"))))
	assert.Equal(t, "plain", MessageOf(errors.New("plain")))
}
