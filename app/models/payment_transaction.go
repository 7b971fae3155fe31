package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentTransaction records one successful gateway charge. The gateway
// payment id is the dedup key so replayed charged webhooks cannot create
// duplicate rows.
type PaymentTransaction struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	LocalRef         string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"local_ref"`
	SubscriptionID   uint      `gorm:"not null;index" json:"subscription_id"`
	GatewayPaymentID string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"gateway_payment_id"`
	Amount           int64     `gorm:"not null;default:0" json:"amount"`
	Currency         string    `gorm:"type:varchar(10);not null;default:'INR'" json:"currency"`
	Status           string    `gorm:"type:varchar(20);not null;default:'captured'" json:"status"`
	PaidAt           time.Time `gorm:"not null" json:"paid_at"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// BeforeCreate assigns a local reference id for support tooling.
func (p *PaymentTransaction) BeforeCreate(tx *gorm.DB) error {
	if p.LocalRef == "" {
		p.LocalRef = uuid.NewString()
	}
	return nil
}
