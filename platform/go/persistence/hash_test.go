package persistence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeJSONHashIgnoresKeyOrderAndWhitespace(t *testing.T) {
	a, err := computeJSONHash([]byte(`{"firstName":"Ana","income":{"monthlyIncome":"3500.00"}}`))
	require.NoError(t, err)

	b, err := computeJSONHash([]byte("{\n  \"income\": {\"monthlyIncome\": \"3500.00\"},\n  \"firstName\": \"Ana\"\n}"))
	require.NoError(t, err)

	require.Equal(t, a, b)
	require.Len(t, a, 64)
}

func TestComputeJSONHashDetectsChanges(t *testing.T) {
	a, err := computeJSONHash([]byte(`{"monthlyIncome":"3500.00"}`))
	require.NoError(t, err)
	b, err := computeJSONHash([]byte(`{"monthlyIncome":"3500.01"}`))
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestComputeJSONHashRejectsEmptyAndInvalid(t *testing.T) {
	_, err := computeJSONHash(nil)
	require.Error(t, err)

	_, err = computeJSONHash([]byte(`{"broken"`))
	require.Error(t, err)
}
