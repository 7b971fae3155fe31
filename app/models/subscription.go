package models

import "time"

const (
	SubscriptionStatusCreated   = "created"
	SubscriptionStatusTrial     = "trial"
	SubscriptionStatusActive    = "active"
	SubscriptionStatusPastDue   = "past_due"
	SubscriptionStatusHalted    = "halted"
	SubscriptionStatusCancelled = "cancelled"
	SubscriptionStatusCompleted = "completed"
	SubscriptionStatusExpired   = "expired"
)

// DefaultMaxRetryAttempts is the payment retry ceiling before a lapsed
// subscription is swept to expired.
const DefaultMaxRetryAttempts = 3

// Subscription mirrors one gateway subscription owned by a community admin.
// Rows are never deleted; terminal states are retained for audit.
//
// Counter fields come in two flavors and must not be mixed up:
// gateway-owned counters (PaidCount, TotalCount, AuthAttempts, Quantity) are
// set from the gateway's own values, never incremented locally, so duplicate
// webhook delivery cannot double-count. Locally-owned counters
// (ConsecutiveFailures, RetryAttempts) are incremented by our handlers only.
type Subscription struct {
	ID                    uint   `gorm:"primaryKey" json:"id"`
	GatewaySubscriptionID string `gorm:"type:varchar(191);not null;uniqueIndex" json:"gateway_subscription_id"`
	GatewayPlanID         string `gorm:"type:varchar(191)" json:"gateway_plan_id"`
	GatewayCustomerID     string `gorm:"type:varchar(191)" json:"gateway_customer_id"`
	AdminID               uint   `gorm:"not null;index" json:"admin_id"`
	CommunityID           *uint  `gorm:"index" json:"community_id,omitempty"`
	Status                string `gorm:"type:varchar(20);not null;default:'created';index" json:"status"`

	// Active billing window. CurrentEnd is the authority for access validity.
	CurrentStart *time.Time `gorm:"type:timestamp;default:null" json:"current_start,omitempty"`
	CurrentEnd   *time.Time `gorm:"type:timestamp;default:null;index" json:"current_end,omitempty"`
	ChargeAt     *time.Time `gorm:"type:timestamp;default:null" json:"charge_at,omitempty"`
	StartAt      *time.Time `gorm:"type:timestamp;default:null" json:"start_at,omitempty"`
	EndAt        *time.Time `gorm:"type:timestamp;default:null" json:"end_at,omitempty"`

	// Gateway-owned counters, set not incremented.
	PaidCount    int `gorm:"default:0" json:"paid_count"`
	TotalCount   int `gorm:"default:0" json:"total_count"`
	AuthAttempts int `gorm:"default:0" json:"auth_attempts"`
	Quantity     int `gorm:"default:1" json:"quantity"`

	// Locally-owned retry bookkeeping.
	ConsecutiveFailures int        `gorm:"default:0" json:"consecutive_failures"`
	RetryAttempts       int        `gorm:"default:0" json:"retry_attempts"`
	MaxRetryAttempts    int        `gorm:"default:3" json:"max_retry_attempts"`
	NextRetryAt         *time.Time `gorm:"type:timestamp;default:null;index" json:"next_retry_at,omitempty"`
	LastFailureAt       *time.Time `gorm:"type:timestamp;default:null" json:"last_failure_at,omitempty"`

	TrialEndDate  *time.Time `gorm:"type:timestamp;default:null" json:"trial_end_date,omitempty"`
	LastWebhookAt *time.Time `gorm:"type:timestamp;default:null;index" json:"last_webhook_at,omitempty"`
	EndedAt       *time.Time `gorm:"type:timestamp;default:null" json:"ended_at,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether the subscription reached a terminal status.
// Terminal subscriptions only move again via the explicit activated path.
func (s *Subscription) IsTerminal() bool {
	switch s.Status {
	case SubscriptionStatusCancelled, SubscriptionStatusCompleted, SubscriptionStatusExpired:
		return true
	default:
		return false
	}
}

// RetryExhausted reports whether the local retry budget is used up.
func (s *Subscription) RetryExhausted() bool {
	max := s.MaxRetryAttempts
	if max <= 0 {
		max = DefaultMaxRetryAttempts
	}
	return s.RetryAttempts >= max
}
