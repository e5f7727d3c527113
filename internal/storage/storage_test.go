package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorage(t *testing.T) {
	s := NewMemoryStorage()

	_, ok, err := s.Get(KeyToken)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(KeyToken, "abc"))
	v, ok, err := s.Get(KeyToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)

	require.NoError(t, s.Set(KeyToken, "def"))
	v, _, _ = s.Get(KeyToken)
	assert.Equal(t, "def", v)
	assert.ElementsMatch(t, []string{KeyToken}, s.Keys())

	require.NoError(t, s.Remove(KeyToken))
	require.NoError(t, s.Remove(KeyToken), "removing a missing key is not an error")
	_, ok, _ = s.Get(KeyToken)
	assert.False(t, ok)
}
