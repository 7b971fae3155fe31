package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	ROLE_ADMIN  = "admin"
	ROLE_MEMBER = "member"
)

const (
	STATUS_ACTIVE   = "active"
	STATUS_DISABLED = "disabled"
)

// User is a platform account. Community admins own subscriptions; the
// admin-scoped trial clock lives here so creating a second community cannot
// re-trigger a free trial.
type User struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Name         string `gorm:"type:varchar(100);not null" json:"name"`
	Email        string `gorm:"type:varchar(200);not null;uniqueIndex" json:"email"`
	PasswordHash string `gorm:"type:varchar(255)" json:"-"`
	Role         string `gorm:"type:varchar(20);not null;default:'member'" json:"role"`
	Status       string `gorm:"type:varchar(20);not null;default:'active'" json:"status"`

	// Admin trial clock, one per admin regardless of community count.
	TrialActivated bool       `gorm:"default:false" json:"trial_activated"`
	TrialStartDate *time.Time `gorm:"type:timestamp;default:null" json:"trial_start_date,omitempty"`
	TrialEndDate   *time.Time `gorm:"type:timestamp;default:null" json:"trial_end_date,omitempty"`
	TrialUsed      bool       `gorm:"default:false" json:"trial_used"`
	TrialCancelled bool       `gorm:"default:false" json:"trial_cancelled"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// SetPassword hashes and stores the given plaintext password.
func (u *User) SetPassword(plain string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword verifies a plaintext password against the stored hash.
func (u *User) CheckPassword(plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(plain)) == nil
}

// HasActiveTrial reports whether the admin trial clock grants access at t.
func (u *User) HasActiveTrial(t time.Time) bool {
	if !u.TrialActivated || u.TrialCancelled || u.TrialEndDate == nil {
		return false
	}
	return u.TrialEndDate.After(t)
}
