package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidation(t *testing.T) {
	err := Validation("amount %s is not positive", "-1")
	assert.True(t, IsValidation(err))
	assert.Equal(t, "amount -1 is not positive", err.Error())

	wrapped := fmt.Errorf("request failed: %w", err)
	assert.True(t, IsValidation(wrapped))

	assert.False(t, IsValidation(ErrInsufficientFunds))
	assert.False(t, IsValidation(errors.New("plain")))
	assert.False(t, IsValidation(nil))
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{ErrInsufficientFunds, ErrAlreadyProcessed, ErrRateUnavailable, ErrDataIntegrity, ErrNotFound}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			assert.False(t, errors.Is(a, b))
		}
	}
}
