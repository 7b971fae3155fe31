package models

import "time"

// Community payment projection values.
const (
	PaymentStatusUnpaid  = "unpaid"
	PaymentStatusTrial   = "trial"
	PaymentStatusPaid    = "paid"
	PaymentStatusExpired = "expired"
)

// Denormalized subscription status mirror on the community.
const (
	CommunitySubStatusTrial     = "trial"
	CommunitySubStatusActive    = "active"
	CommunitySubStatusPastDue   = "past_due"
	CommunitySubStatusSuspended = "suspended"
	CommunitySubStatusCancelled = "cancelled"
)

// Community is a tenant namespace gated by its admin's subscription. The
// payment fields are a read-optimized projection of Subscription truth so the
// access gate never has to call the gateway on the request path.
type Community struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	Slug    string `gorm:"type:varchar(100);not null;uniqueIndex" json:"slug"`
	Name    string `gorm:"type:varchar(200);not null" json:"name"`
	AdminID uint   `gorm:"not null;index" json:"admin_id"`

	SubscriptionID        *uint      `gorm:"index" json:"subscription_id,omitempty"`
	SubscriptionStatus    string     `gorm:"type:varchar(20);default:''" json:"subscription_status"`
	SubscriptionStartDate *time.Time `gorm:"type:timestamp;default:null" json:"subscription_start_date,omitempty"`
	SubscriptionEndDate   *time.Time `gorm:"type:timestamp;default:null" json:"subscription_end_date,omitempty"`
	TrialEndDate          *time.Time `gorm:"type:timestamp;default:null" json:"trial_end_date,omitempty"`
	PaymentStatus         string     `gorm:"type:varchar(20);not null;default:'unpaid'" json:"payment_status"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// HasActivePayment reports whether the paid window still covers t.
func (c *Community) HasActivePayment(t time.Time) bool {
	return c.PaymentStatus == PaymentStatusPaid &&
		c.SubscriptionEndDate != nil &&
		c.SubscriptionEndDate.After(t)
}

// HadPriorBilling reports whether a trial or subscription ever existed, which
// turns a plain "no access" into a suspension.
func (c *Community) HadPriorBilling() bool {
	return c.SubscriptionID != nil ||
		c.PaymentStatus == PaymentStatusExpired ||
		c.TrialEndDate != nil
}
