package counter

import (
	"context"
	"strconv"

	"github.com/abbasshaikh29/TribeLab/internal/pkg/cache"
)

const (
	webhookReceivedKey = "billing:counters:webhooks:received"
	webhookRejectedKey = "billing:counters:webhooks:rejected"
)

// AddWebhookReceived increments the received counter for an event type in Redis
func AddWebhookReceived(eventType string) error {
	ctx := context.Background()
	if eventType == "" {
		eventType = "unknown"
	}
	return cache.GetClient().HIncrBy(ctx, webhookReceivedKey, eventType, 1).Err()
}

// AddWebhookRejected increments the rejected-signature counter
func AddWebhookRejected() error {
	ctx := context.Background()
	return cache.GetClient().Incr(ctx, webhookRejectedKey).Err()
}

// Snapshot returns the per-event received counts plus the rejected total.
// Used by the admin stats endpoint; counters live only in Redis.
func Snapshot() (map[string]int64, int64, error) {
	ctx := context.Background()
	rdb := cache.GetClient()

	raw, err := rdb.HGetAll(ctx, webhookReceivedKey).Result()
	if err != nil {
		return nil, 0, err
	}
	received := make(map[string]int64, len(raw))
	for event, val := range raw {
		n, perr := strconv.ParseInt(val, 10, 64)
		if perr != nil {
			continue
		}
		received[event] = n
	}

	rejected, err := rdb.Get(ctx, webhookRejectedKey).Int64()
	if err != nil {
		rejected = 0
	}
	return received, rejected, nil
}
