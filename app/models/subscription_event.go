package models

import "time"

// WebhookEventLogCap is the maximum number of webhook log entries retained
// per subscription. Older entries are pruned by the maintenance job, never by
// the ingestion path, to keep webhook write latency low.
const WebhookEventLogCap = 100

// SubscriptionWebhookEvent is one entry of a subscription's capped webhook
// log. The log is append-only on ingestion and ordered by ReceivedAt.
type SubscriptionWebhookEvent struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	SubscriptionID uint      `gorm:"not null;index:idx_sub_events_sub_received,priority:1" json:"subscription_id"`
	Event          string    `gorm:"type:varchar(100);not null" json:"event"`
	ReceivedAt     time.Time `gorm:"not null;index:idx_sub_events_sub_received,priority:2" json:"received_at"`
	Processed      bool      `gorm:"default:false" json:"processed"`
	Data           string    `gorm:"type:longtext" json:"data"`
}
