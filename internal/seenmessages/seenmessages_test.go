package seenmessages

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsertFirstTimeReturnsTrue(t *testing.T) {
	s := New(0)
	id := NewID()
	assert.True(t, s.Insert(id))
	assert.True(t, s.Contains(id))
}

func TestInsertDuplicateReturnsFalse(t *testing.T) {
	s := New(0)
	id := NewID()
	require := assert.New(t)
	require.True(s.Insert(id))
	require.False(s.Insert(id))
}

func TestNewIDIsUnique(t *testing.T) {
	a, b := NewID(), NewID()
	assert.NotEqual(t, a, b)
}

func TestCapacityEviction(t *testing.T) {
	s := New(2)
	a, b, c := NewID(), NewID(), NewID()
	s.Insert(a)
	s.Insert(b)
	s.Insert(c)
	assert.LessOrEqual(t, s.Len(), 2)
	assert.True(t, s.Contains(c))
}
