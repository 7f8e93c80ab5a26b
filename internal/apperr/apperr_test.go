package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/kiranshivaraju/inventomatic/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvalid(t *testing.T) {
	err := apperr.Invalid("external_id", "must be at most %d characters", 64)

	assert.True(t, errors.Is(err, apperr.ErrValidation))
	assert.Equal(t, "external_id: must be at most 64 characters", err.Error())

	var verr *apperr.ValidationError
	require.True(t, errors.As(fmt.Errorf("provision: %w", err), &verr))
	assert.Equal(t, "external_id", verr.Field)
}

func TestInvalid_NoField(t *testing.T) {
	err := apperr.Invalid("", "request body is empty")
	assert.Equal(t, "request body is empty", err.Error())
}
