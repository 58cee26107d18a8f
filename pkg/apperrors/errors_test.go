package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadFailure(t *testing.T) {
	cause := errors.New("503 service unavailable")
	err := fmt.Errorf("resolve: %w", NewLoadFailure(PhaseResolution, "years", cause))

	assert.True(t, IsLoadFailure(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "resolution years failed")

	var lf *LoadFailure
	assert.True(t, errors.As(err, &lf))
	assert.Equal(t, UserFailureMessage, lf.UserMessage())
	assert.NotContains(t, lf.UserMessage(), "503")

	assert.False(t, IsLoadFailure(ErrNoMatchingDataset))
}
