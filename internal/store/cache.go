package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Report names cached per user; invalidation deletes this fixed set so no
// SCAN is needed.
var cachedReports = []string{"forecast", "trends", "goals", "salary", "daily-budget"}

// ReportCache is a cache-aside layer for computed report JSON. A nil
// ReportCache (or one with a nil client) degrades to no caching.
type ReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewReportCache wraps a Redis client. ttl <= 0 defaults to five minutes.
func NewReportCache(client *redis.Client, ttl time.Duration) *ReportCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ReportCache{client: client, ttl: ttl}
}

func reportKey(userID, report string) string {
	return fmt.Sprintf("flow:reports:%s:%s", userID, report)
}

// Get loads a cached report into v. Returns false on miss, disabled cache,
// or any Redis/decode failure — a cache problem never fails a request.
func (c *ReportCache) Get(ctx context.Context, userID, report string, v any) bool {
	if c == nil || c.client == nil {
		return false
	}
	data, err := c.client.Get(ctx, reportKey(userID, report)).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

// Set stores a computed report. Failures are ignored for the same reason.
func (c *ReportCache) Set(ctx context.Context, userID, report string, v any) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.client.Set(ctx, reportKey(userID, report), data, c.ttl)
}

// Invalidate drops all cached reports for a user, called after every sync.
func (c *ReportCache) Invalidate(ctx context.Context, userID string) {
	if c == nil || c.client == nil {
		return
	}
	keys := make([]string, 0, len(cachedReports))
	for _, report := range cachedReports {
		keys = append(keys, reportKey(userID, report))
	}
	c.client.Del(ctx, keys...)
}
