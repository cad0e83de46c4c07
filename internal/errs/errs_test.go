package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(fmt.Errorf("wrapped: %w", ErrTaskNotFound)))
	assert.Equal(t, KindServer, KindOf(errors.New("boom")))
	assert.Equal(t, "validation_error", Invalid("title", "is required").Code())
}

func TestFieldErrors(t *testing.T) {
	assert.NoError(t, FieldErrors(nil))
	err := FieldErrors(map[string]string{"title": "is required"})
	var e *Error
	assert.True(t, errors.As(err, &e))
	assert.Equal(t, "is required", e.Fields["title"])
}

func TestFromDB(t *testing.T) {
	assert.Nil(t, FromDB(nil, ErrTaskNotFound))
	assert.Same(t, ErrTaskNotFound, FromDB(gorm.ErrRecordNotFound, ErrTaskNotFound))
	assert.Equal(t, KindNotFound, KindOf(FromDB(gorm.ErrRecordNotFound, nil)))

	dup := FromDB(fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), nil)
	assert.Equal(t, KindConflict, KindOf(dup))
	assert.True(t, IsDuplicate(dup))

	other := errors.New("connection reset")
	assert.Same(t, other, FromDB(other, ErrTaskNotFound))
}
