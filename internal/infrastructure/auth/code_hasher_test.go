package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptCodeHasher(t *testing.T) {
	h := NewBcryptCodeHasher(bcrypt.MinCost)

	hash, err := h.Hash("482913")
	require.NoError(t, err)
	assert.NotEqual(t, "482913", hash)
	assert.True(t, h.Compare(hash, "482913"))
	assert.False(t, h.Compare(hash, "482914"))
	assert.False(t, h.Compare("not-a-hash", "482913"))

	again, err := h.Hash("482913")
	require.NoError(t, err)
	assert.NotEqual(t, hash, again, "hashes are salted")
}

func TestNewBcryptCodeHasher_CostFallback(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptCodeHasher(0).cost)
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptCodeHasher(99).cost)
	assert.Equal(t, 12, NewBcryptCodeHasher(12).cost)
}
