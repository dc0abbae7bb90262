package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wildfire-analytics/internal/domain"
)

func TestFiresKey(t *testing.T) {
	assert.Equal(t, "fires_1_50___", FiresKey(1, 50, "", 0, ""))
	assert.Equal(t, "fires_3_20_CA_2015_G", FiresKey(3, 20, "CA", 2015, "G"))
	assert.NotEqual(t, FiresKey(1, 50, "CA", 0, ""), FiresKey(1, 50, "", 0, "CA"))
}

func TestFetch_ReadThrough(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewMemoryCacheWithClock(clock.now)
	ctx := context.Background()

	calls := 0
	load := func(context.Context) (domain.SummaryStats, error) {
		calls++
		return domain.SummaryStats{TotalFires: calls}, nil
	}

	first, err := Fetch(ctx, c, zap.NewNop(), SummaryKey, SummaryTTL, load)
	require.NoError(t, err)
	second, err := Fetch(ctx, c, zap.NewNop(), SummaryKey, SummaryTTL, load)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)

	clock.advance(SummaryTTL)
	third, err := Fetch(ctx, c, zap.NewNop(), SummaryKey, SummaryTTL, load)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, third.TotalFires)
}

func TestFetch_LoadErrorIsNotCached(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	_, err := Fetch(ctx, c, zap.NewNop(), PCAKey, PCATTL, func(context.Context) (domain.SummaryStats, error) {
		return domain.SummaryStats{}, errors.New("store down")
	})
	assert.ErrorContains(t, err, "store down")
	assert.Equal(t, 0, c.Len())
}

func TestFetch_MalformedEntryIsRecomputed(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, SummaryKey, domain.YearCount{Year: 1999}, SummaryTTL))

	got, err := Fetch(ctx, c, zap.NewNop(), SummaryKey, SummaryTTL, func(context.Context) (domain.SummaryStats, error) {
		return domain.SummaryStats{TotalFires: 9}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 9, got.TotalFires)

	var cached domain.SummaryStats
	hit, err := c.Get(ctx, SummaryKey, &cached)
	require.NoError(t, err)
	assert.True(t, hit)
}
