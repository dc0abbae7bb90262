package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

var ErrMalformedEntry = errors.New("malformed cache entry")

// Freshness windows per read endpoint. Entries are never invalidated on
// writes, so each TTL is also the staleness bound of its view.
const (
	ListingTTL  = 300 * time.Second
	ClustersTTL = 600 * time.Second
	SummaryTTL  = 900 * time.Second
	PCATTL      = 1800 * time.Second
)

const (
	ClustersKey = "fire_clusters"
	PCAKey      = "pca_analysis"
	SummaryKey  = "summary_stats"
)

// Cache is a key/value store with per-entry expiry. An entry set with ttl T
// at t0 is served strictly before t0+T.
type Cache interface {
	// Get decodes the entry into dst. A missing or expired key is a miss with
	// a nil error; an undecodable entry is a miss with an error wrapping
	// ErrMalformedEntry.
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// FiresKey builds the listing key from its pagination and filter parameters.
// Unset filters render as empty segments.
func FiresKey(page, perPage int, state string, year int, sizeClass string) string {
	yearPart := ""
	if year != 0 {
		yearPart = fmt.Sprint(year)
	}
	return fmt.Sprintf("fires_%d_%d_%s_%s_%s", page, perPage, state, yearPart, sizeClass)
}

// Fetch serves key from c, or computes it with load and stores the result
// for ttl. Cache failures degrade to a direct load.
func Fetch[T any](ctx context.Context, c Cache, logger *zap.Logger, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var cached T
	hit, err := c.Get(ctx, key, &cached)
	switch {
	case err != nil:
		logger.Warn("Cache read failed, treating as miss", zap.String("key", key), zap.Error(err))
	case hit:
		logger.Debug("Cache hit", zap.String("key", key))
		return cached, nil
	}

	value, err := load(ctx)
	if err != nil {
		return value, err
	}

	if err := c.Set(ctx, key, value, ttl); err != nil {
		logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
	return value, nil
}
