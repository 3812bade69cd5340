package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/callvault/callvault/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(apperr.Validation("owner id required")))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(apperr.NotFound("no note to delete")))
	assert.Equal(t, apperr.KindExpired, apperr.KindOf(apperr.Expired("invite expired")))
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(apperr.Conflict("last admin")))
	assert.Equal(t, apperr.Kind(0), apperr.KindOf(errors.New("plain")))
}

func TestStore_WrapsUnderlying(t *testing.T) {
	underlying := errors.New("connection reset")
	err := apperr.Store("create share link", underlying)

	require.True(t, apperr.IsKind(err, apperr.KindStore))
	assert.ErrorIs(t, err, underlying)
	assert.Contains(t, err.Error(), "create share link")
}

func TestIsKind_ThroughWrapping(t *testing.T) {
	err := fmt.Errorf("handler: %w", apperr.Conflict("cannot remove the last admin"))
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.False(t, apperr.IsKind(err, apperr.KindNotFound))
}
