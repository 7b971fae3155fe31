package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/abbasshaikh29/TribeLab/app/models"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

const (
	// statusSyncBatchCap bounds blast radius and gateway call rate per run.
	statusSyncBatchCap = 50
	// statusSyncStaleness marks a subscription eligible for pull healing.
	statusSyncStaleness = 24 * time.Hour

	renewalWindowStart = 24 * time.Hour
	renewalWindowEnd   = 72 * time.Hour
	renewalDedup       = 48 * time.Hour

	retryNoticeLookahead = time.Hour
	retryNoticeDedup     = 6 * time.Hour
)

// MaintenanceResult is the JSON summary of one maintenance run.
type MaintenanceResult struct {
	SyncedSubscriptions  int      `json:"syncedSubscriptions"`
	RenewalReminders     int      `json:"renewalReminders"`
	RetryNotifications   int      `json:"retryNotifications"`
	ExpiredSubscriptions int      `json:"expiredSubscriptions"`
	CompactedLogs        int      `json:"compactedLogs"`
	Errors               []string `json:"errors"`
}

// MaintenanceService runs the periodic reconciliation passes: status sync,
// renewal reminders, retry notifications, expiration sweep and log
// compaction. Passes are isolated; one subscription's error never aborts a
// pass and one pass's error never aborts the run.
type MaintenanceService struct {
	repo     Repository
	gateway  Gateway
	notifier Notifier

	now            func() time.Time
	batchCap       int
	interCallDelay time.Duration
	gatewayTimeout time.Duration
}

// NewMaintenanceService creates a maintenance service from injected
// dependencies.
func NewMaintenanceService(repo Repository, gateway Gateway, notifier Notifier) *MaintenanceService {
	return &MaintenanceService{
		repo:           repo,
		gateway:        gateway,
		notifier:       notifier,
		now:            time.Now,
		batchCap:       statusSyncBatchCap,
		interCallDelay: 250 * time.Millisecond,
		gatewayTimeout: 5 * time.Second,
	}
}

// NewMaintenanceServiceFromDB creates a maintenance service from a GORM DB
// handle and the env-configured gateway client.
func NewMaintenanceServiceFromDB(db *gorm.DB, notifier Notifier) *MaintenanceService {
	return NewMaintenanceService(NewRepository(db), NewRazorpayClientFromEnv(), notifier)
}

// Run executes all five passes and always returns a result; errors inside a
// pass are collected, not raised.
func (m *MaintenanceService) Run(ctx context.Context) *MaintenanceResult {
	res := &MaintenanceResult{Errors: []string{}}

	m.syncStatuses(ctx, res)
	m.sendRenewalReminders(res)
	m.sendRetryNotices(res)
	m.sweepExpired(res)
	m.compactEventLogs(res)

	log.Infof("maintenance: synced=%d reminders=%d retries=%d expired=%d compacted=%d errors=%d",
		res.SyncedSubscriptions, res.RenewalReminders, res.RetryNotifications,
		res.ExpiredSubscriptions, res.CompactedLogs, len(res.Errors))
	return res
}

// syncStatuses pulls current gateway state for subscriptions whose last
// webhook is stale. This is the self-healing path for missed webhooks.
func (m *MaintenanceService) syncStatuses(ctx context.Context, res *MaintenanceResult) {
	now := m.now()
	statuses := []string{
		models.SubscriptionStatusActive,
		models.SubscriptionStatusCreated,
		models.SubscriptionStatusPastDue,
	}
	subs, err := m.repo.ListStaleSubscriptions(statuses, now.Add(-statusSyncStaleness), m.batchCap)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("status sync: list: %v", err))
		return
	}

	for i := range subs {
		sub := subs[i]
		if err := m.syncOne(ctx, &sub); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("status sync %s: %v", sub.GatewaySubscriptionID, err))
		} else {
			res.SyncedSubscriptions++
		}
		if i < len(subs)-1 {
			// Simple rate limiting toward the gateway; no token bucket needed
			// at a batch cap of 50.
			time.Sleep(m.interCallDelay)
		}
	}
}

func (m *MaintenanceService) syncOne(ctx context.Context, sub *models.Subscription) error {
	cctx, cancel := context.WithTimeout(ctx, m.gatewayTimeout)
	defer cancel()

	gw, err := m.gateway.FetchSubscription(cctx, sub.GatewaySubscriptionID)
	if err != nil {
		return err
	}

	now := m.now()
	applyGatewayState(sub, gw, now)

	if mapped := MapGatewayStatus(gw.Status); mapped != "" && mapped != sub.Status {
		// Pull sync honors the same terminality rule as webhooks: a terminal
		// local status only re-opens when the gateway reports active.
		if !IsTerminalStatus(sub.Status) || mapped == models.SubscriptionStatusActive {
			sub.Status = mapped
		}
	}
	if err := m.repo.SaveSubscription(sub); err != nil {
		return err
	}

	if sub.Status == models.SubscriptionStatusActive && sub.CommunityID != nil {
		if err := m.repo.UpdateCommunityProjection(*sub.CommunityID, map[string]interface{}{
			"subscription_status":     models.CommunitySubStatusActive,
			"payment_status":          models.PaymentStatusPaid,
			"subscription_start_date": sub.CurrentStart,
			"subscription_end_date":   sub.CurrentEnd,
		}); err != nil {
			log.Errorf("status sync: community projection for %d: %v", *sub.CommunityID, err)
		}
	}
	return nil
}

func (m *MaintenanceService) sendRenewalReminders(res *MaintenanceResult) {
	if m.notifier == nil {
		return
	}
	now := m.now()
	subs, err := m.repo.ListRenewalWindow(now.Add(renewalWindowStart), now.Add(renewalWindowEnd))
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("renewal reminders: list: %v", err))
		return
	}

	for i := range subs {
		sub := subs[i]
		admin, err := m.repo.GetUserByID(sub.AdminID)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("renewal reminder %s: admin lookup: %v", sub.GatewaySubscriptionID, err))
			continue
		}
		sent, err := m.notifier.SendOnce(&sub, admin.Email, models.NotificationRenewalReminder, renewalDedup,
			"Your community subscription renews soon",
			fmt.Sprintf("Your subscription renews on %s.", sub.CurrentEnd.Format("Jan 2, 2006")))
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("renewal reminder %s: %v", sub.GatewaySubscriptionID, err))
			continue
		}
		if sent {
			res.RenewalReminders++
		}
	}
}

func (m *MaintenanceService) sendRetryNotices(res *MaintenanceResult) {
	if m.notifier == nil {
		return
	}
	now := m.now()
	subs, err := m.repo.ListRetryDue(now.Add(retryNoticeLookahead))
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("retry notices: list: %v", err))
		return
	}

	for i := range subs {
		sub := subs[i]
		admin, err := m.repo.GetUserByID(sub.AdminID)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("retry notice %s: admin lookup: %v", sub.GatewaySubscriptionID, err))
			continue
		}
		sent, err := m.notifier.SendOnce(&sub, admin.Email, models.NotificationPaymentRetry, retryNoticeDedup,
			"Payment retry scheduled",
			"We will retry the failed charge for your community subscription within the next hour.")
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("retry notice %s: %v", sub.GatewaySubscriptionID, err))
			continue
		}
		if sent {
			res.RetryNotifications++
		}
	}
}

// sweepExpired moves lapsed, retry-exhausted subscriptions to expired and
// updates the community projection in the same pass.
func (m *MaintenanceService) sweepExpired(res *MaintenanceResult) {
	subs, err := m.repo.ListExpirable(m.now())
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("expiration sweep: list: %v", err))
		return
	}

	for i := range subs {
		sub := subs[i]
		sub.Status = models.SubscriptionStatusExpired
		sub.EndedAt = sub.CurrentEnd
		if err := m.repo.SaveSubscription(&sub); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("expiration sweep %s: %v", sub.GatewaySubscriptionID, err))
			continue
		}
		if sub.CommunityID != nil {
			if err := m.repo.UpdateCommunityProjection(*sub.CommunityID, map[string]interface{}{
				"subscription_status": models.CommunitySubStatusSuspended,
				"payment_status":      models.PaymentStatusExpired,
			}); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("expiration sweep %s: projection: %v", sub.GatewaySubscriptionID, err))
				continue
			}
		}
		res.ExpiredSubscriptions++
	}
}

func (m *MaintenanceService) compactEventLogs(res *MaintenanceResult) {
	ids, err := m.repo.ListOverflowingEventLogs(models.WebhookEventLogCap)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("log compaction: list: %v", err))
		return
	}

	for _, id := range ids {
		if _, err := m.repo.TrimWebhookEvents(id, models.WebhookEventLogCap); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("log compaction %d: %v", id, err))
			continue
		}
		res.CompactedLogs++
	}
}
