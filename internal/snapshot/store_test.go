package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertTwiceKeepsSize(t *testing.T) {
	s := New[string, int]()
	assert.True(t, s.Upsert("k", 1))
	assert.False(t, s.Upsert("k", 2))

	v, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, s.Len())
}

func TestValuesInsertionOrder(t *testing.T) {
	s := New[string, string]()
	s.Upsert("b", "b1")
	s.Upsert("a", "a1")
	s.Upsert("c", "c1")
	s.Upsert("b", "b2")

	assert.Equal(t, []string{"b", "a", "c"}, s.Keys())
	assert.Equal(t, []string{"b2", "a1", "c1"}, s.Values())
}

func TestGetMissing(t *testing.T) {
	s := New[int, string]()
	_, ok := s.Get(1)
	assert.False(t, ok)
	assert.Empty(t, s.Values())
}

func TestValuesIsCopy(t *testing.T) {
	s := New[string, int]()
	s.Upsert("a", 1)
	vals := s.Values()
	vals[0] = 5
	v, _ := s.Get("a")
	assert.Equal(t, 1, v)
}

func TestIndependentInstances(t *testing.T) {
	orders := New[string, int]()
	limits := New[string, int]()
	orders.Upsert("SBER", 1)
	_, ok := limits.Get("SBER")
	assert.False(t, ok)
}
