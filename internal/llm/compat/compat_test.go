package compat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck_AllowsUngroundedStructured(t *testing.T) {
	assert.NoError(t, Check("google", false, true))
}

func TestCheck_AllowsGroundedUnstructured(t *testing.T) {
	assert.NoError(t, Check("google", true, false))
}

func TestCheck_RejectsBothOnGoogle(t *testing.T) {
	err := Check("google", true, true)
	require.Error(t, err)
	var incompatible *ErrIncompatibleRequest
	require.ErrorAs(t, err, &incompatible)
	assert.Equal(t, "google", incompatible.Provider)
}

func TestCheck_NonRestrictedProviderAllowsBoth(t *testing.T) {
	assert.NoError(t, Check("anthropic", true, true))
}

func TestResolveMode_GroundingWinsOnRestrictedProvider(t *testing.T) {
	grounding, structured := ResolveMode("google", true, true)
	assert.True(t, grounding)
	assert.False(t, structured)
}

func TestResolveMode_BothAllowedOnNonRestrictedProvider(t *testing.T) {
	grounding, structured := ResolveMode("anthropic", true, true)
	assert.True(t, grounding)
	assert.True(t, structured)
}

func TestResolveMode_PassesThroughSingleRequest(t *testing.T) {
	grounding, structured := ResolveMode("google", true, false)
	assert.True(t, grounding)
	assert.False(t, structured)

	grounding, structured = ResolveMode("google", false, true)
	assert.False(t, grounding)
	assert.True(t, structured)
}
