package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)

	var got []string
	found, err := c.Get(ctx, "agencies", &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, "agencies", []string{"Fairfax County", "Richmond"}))
	found, err = c.Get(ctx, "agencies", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"Fairfax County", "Richmond"}, got)
}

func TestRemember(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)

	calls := 0
	fn := func() (int, error) {
		calls++
		return 12000, nil
	}

	for i := 0; i < 3; i++ {
		v, err := Remember(ctx, c, "count", nil, fn)
		require.NoError(t, err)
		assert.Equal(t, 12000, v)
	}
	assert.Equal(t, 1, calls)
}

func TestRemember_ErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)
	boom := errors.New("portal unavailable")

	_, err := Remember(ctx, c, "years", nil, func() ([]int, error) { return nil, boom })
	require.ErrorIs(t, err, boom)

	v, err := Remember(ctx, c, "years", nil, func() ([]int, error) { return []int{2021}, nil })
	require.NoError(t, err)
	assert.Equal(t, []int{2021}, v)
}

func TestRemember_NilCache(t *testing.T) {
	v, err := Remember(context.Background(), nil, "k", nil, func() (string, error) { return "x", nil })
	require.NoError(t, err)
	assert.Equal(t, "x", v)
}
