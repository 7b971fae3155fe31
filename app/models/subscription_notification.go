package models

import "time"

// Notification types recorded for dedup windows.
const (
	NotificationRenewalReminder = "renewal_reminder"
	NotificationPaymentRetry    = "payment_retry"
	NotificationPaymentFailed   = "payment_failed"
)

const NotificationChannelEmail = "email"

// SubscriptionNotification records a user-facing message that was sent for a
// subscription. It exists purely to enforce at-most-once-per-window delivery;
// actual transport is the mailer's problem.
type SubscriptionNotification struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	SubscriptionID uint      `gorm:"not null;index:idx_sub_notifications_sub_type,priority:1" json:"subscription_id"`
	Type           string    `gorm:"type:varchar(50);not null;index:idx_sub_notifications_sub_type,priority:2" json:"type"`
	Channel        string    `gorm:"type:varchar(20);not null;default:'email'" json:"channel"`
	SentAt         time.Time `gorm:"not null;index" json:"sent_at"`
}
