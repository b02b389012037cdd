package main

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"discussion-room/internal/chat"
	"discussion-room/pkg/metrics"
)

// startSweeper evicts rooms idle longer than maxIdle from the cache on schedule.
// A zero maxIdle or empty schedule disables it and returns a nil cron.
func startSweeper(schedule string, maxIdle time.Duration, cache *chat.Cache, logger *slog.Logger) (*cron.Cron, error) {
	if schedule == "" || maxIdle <= 0 {
		return nil, nil
	}
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		n := cache.Sweep(maxIdle)
		if n > 0 {
			metrics.CacheEvictions.Add(float64(n))
			logger.Debug("cache.sweep", "evicted", n, "rooms", cache.Rooms())
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
