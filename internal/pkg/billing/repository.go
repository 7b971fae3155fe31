package billing

import (
	"time"

	"github.com/abbasshaikh29/TribeLab/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the billing service and the
// maintenance job.
type Repository interface {
	GetSubscriptionByGatewayID(gatewayID string) (*models.Subscription, error)
	SaveSubscription(sub *models.Subscription) error
	AppendWebhookEvent(event *models.SubscriptionWebhookEvent) error

	ListStaleSubscriptions(statuses []string, staleBefore time.Time, limit int) ([]models.Subscription, error)
	ListRenewalWindow(from, to time.Time) ([]models.Subscription, error)
	ListRetryDue(until time.Time) ([]models.Subscription, error)
	ListExpirable(now time.Time) ([]models.Subscription, error)
	ListOverflowingEventLogs(cap int) ([]uint, error)
	TrimWebhookEvents(subscriptionID uint, cap int) (int, error)

	LastNotificationAt(subscriptionID uint, notifType string) (*time.Time, error)
	RecordNotification(n *models.SubscriptionNotification) error
	CreateTransactionIfNotExists(txn *models.PaymentTransaction) (bool, error)

	GetCommunityByID(id uint) (*models.Community, error)
	GetCommunityBySlug(slug string) (*models.Community, error)
	SaveCommunity(c *models.Community) error
	UpdateCommunityProjection(id uint, fields map[string]interface{}) error

	GetUserByID(id uint) (*models.User, error)
	SaveUser(u *models.User) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetSubscriptionByGatewayID(gatewayID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("gateway_subscription_id = ?", gatewayID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) SaveSubscription(sub *models.Subscription) error {
	return r.db.Save(sub).Error
}

func (r *gormRepository) AppendWebhookEvent(event *models.SubscriptionWebhookEvent) error {
	return r.db.Create(event).Error
}

func (r *gormRepository) ListStaleSubscriptions(statuses []string, staleBefore time.Time, limit int) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.
		Where("status IN ?", statuses).
		Where("last_webhook_at IS NULL OR last_webhook_at < ?", staleBefore).
		Order("last_webhook_at ASC").
		Limit(limit).
		Find(&subs).Error
	return subs, err
}

func (r *gormRepository) ListRenewalWindow(from, to time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.
		Where("status = ?", models.SubscriptionStatusActive).
		Where("current_end >= ? AND current_end <= ?", from, to).
		Find(&subs).Error
	return subs, err
}

func (r *gormRepository) ListRetryDue(until time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.
		Where("status = ?", models.SubscriptionStatusPastDue).
		Where("next_retry_at IS NOT NULL AND next_retry_at <= ?", until).
		Where("retry_attempts < max_retry_attempts").
		Find(&subs).Error
	return subs, err
}

func (r *gormRepository) ListExpirable(now time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.
		Where("status IN ?", []string{models.SubscriptionStatusActive, models.SubscriptionStatusPastDue}).
		Where("current_end IS NOT NULL AND current_end < ?", now).
		Where("retry_attempts >= max_retry_attempts").
		Find(&subs).Error
	return subs, err
}

func (r *gormRepository) ListOverflowingEventLogs(cap int) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.SubscriptionWebhookEvent{}).
		Select("subscription_id").
		Group("subscription_id").
		Having("COUNT(*) > ?", cap).
		Pluck("subscription_id", &ids).Error
	return ids, err
}

func (r *gormRepository) TrimWebhookEvents(subscriptionID uint, cap int) (int, error) {
	// Keep the newest `cap` entries by received_at, delete the rest.
	var keep []uint
	err := r.db.Model(&models.SubscriptionWebhookEvent{}).
		Where("subscription_id = ?", subscriptionID).
		Order("received_at DESC").
		Limit(cap).
		Pluck("id", &keep).Error
	if err != nil {
		return 0, err
	}
	tx := r.db.
		Where("subscription_id = ?", subscriptionID).
		Where("id NOT IN ?", keep).
		Delete(&models.SubscriptionWebhookEvent{})
	return int(tx.RowsAffected), tx.Error
}

func (r *gormRepository) LastNotificationAt(subscriptionID uint, notifType string) (*time.Time, error) {
	var n models.SubscriptionNotification
	err := r.db.
		Where("subscription_id = ? AND type = ?", subscriptionID, notifType).
		Order("sent_at DESC").
		First(&n).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &n.SentAt, nil
}

func (r *gormRepository) RecordNotification(n *models.SubscriptionNotification) error {
	return r.db.Create(n).Error
}

func (r *gormRepository) CreateTransactionIfNotExists(txn *models.PaymentTransaction) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "gateway_payment_id"}},
		DoNothing: true,
	}).Create(txn)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) GetCommunityByID(id uint) (*models.Community, error) {
	var c models.Community
	if err := r.db.First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *gormRepository) GetCommunityBySlug(slug string) (*models.Community, error) {
	var c models.Community
	if err := r.db.Where("slug = ?", slug).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *gormRepository) SaveCommunity(c *models.Community) error {
	return r.db.Save(c).Error
}

func (r *gormRepository) UpdateCommunityProjection(id uint, fields map[string]interface{}) error {
	return r.db.Model(&models.Community{}).Where("id = ?", id).Updates(fields).Error
}

func (r *gormRepository) GetUserByID(id uint) (*models.User, error) {
	var u models.User
	if err := r.db.First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) SaveUser(u *models.User) error {
	return r.db.Save(u).Error
}
