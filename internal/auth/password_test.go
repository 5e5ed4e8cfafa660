package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBcryptHasher(t *testing.T) {
	hasher := NewBcryptHasher(4)

	hash, err := hasher.Hash("secret1")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", hash)

	ok, err := hasher.Compare(hash, "secret1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = hasher.Compare(hash, "secret2")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = hasher.Compare("not-a-bcrypt-hash", "secret1")
	assert.Error(t, err)
}

func TestNewBcryptHasher_InvalidCostFallsBack(t *testing.T) {
	assert.Equal(t, DefaultBcryptCost, NewBcryptHasher(1).cost)
	assert.Equal(t, DefaultBcryptCost, NewBcryptHasher(99).cost)
	assert.Equal(t, 12, NewBcryptHasher(12).cost)
}
