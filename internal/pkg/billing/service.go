package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/abbasshaikh29/TribeLab/app/models"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// Gateway is the outbound collaborator used for pull reconciliation.
type Gateway interface {
	FetchSubscription(ctx context.Context, subscriptionID string) (*GatewaySubscription, error)
}

// Notifier delivers at-most-once-per-window user messages. The dedup window
// is enforced by the implementation against the notification log.
type Notifier interface {
	SendOnce(sub *models.Subscription, to, notifType string, window time.Duration, subject, body string) (bool, error)
}

// Service consumes authenticated webhook events and applies idempotent state
// transitions to the subscription store. Signature verification happens at
// the HTTP boundary before ProcessEvent is called.
type Service struct {
	repo     Repository
	notifier Notifier
	validate *validator.Validate
	now      func() time.Time
}

// NewService creates a webhook processing service from injected dependencies.
func NewService(repo Repository, notifier Notifier) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		validate: validator.New(),
		now:      time.Now,
	}
}

// NewServiceFromDB creates a service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, notifier Notifier) *Service {
	return NewService(NewRepository(db), notifier)
}

// ProcessEvent handles one raw webhook body. It returns an error only when
// the datastore is unreachable; every business-level problem (unknown event,
// untracked subscription, malformed payload) is logged and swallowed so the
// gateway gets a 200 and does not enter a retry storm.
func (s *Service) ProcessEvent(ctx context.Context, raw []byte) error {
	_ = ctx

	var envlp WebhookEnvelope
	if err := json.Unmarshal(raw, &envlp); err != nil {
		log.Warnf("webhook: unparseable payload: %v", err)
		return nil
	}
	if err := s.validate.Struct(&envlp); err != nil {
		log.Warnf("webhook: invalid envelope: %v", err)
		return nil
	}

	switch envlp.Event {
	case EventSubscriptionCharged, EventSubscriptionFailed, EventSubscriptionCancelled,
		EventSubscriptionActivated, EventSubscriptionCompleted, EventSubscriptionHalted,
		EventInvoiceIssued:
	default:
		log.Infof("webhook: ignoring unknown event type %q", envlp.Event)
		return nil
	}

	gw := envlp.Payload.Subscription.Entity
	sub, err := s.repo.GetSubscriptionByGatewayID(gw.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("webhook: event %s for untracked subscription %q, acknowledging", envlp.Event, gw.ID)
			return nil
		}
		return fmt.Errorf("webhook: subscription lookup failed: %w", err)
	}

	now := s.now()
	eventAt := ReconcileUnix(envlp.CreatedAt, now, "webhook.created_at")

	var handlerErr error
	switch envlp.Event {
	case EventSubscriptionCharged:
		handlerErr = s.handleCharged(sub, &envlp, eventAt)
	case EventSubscriptionFailed:
		handlerErr = s.handleFailed(sub, &gw, eventAt, now)
	case EventSubscriptionCancelled:
		handlerErr = s.handleCancelled(sub, &gw, eventAt)
	case EventSubscriptionActivated:
		handlerErr = s.handleActivated(sub, &gw, eventAt)
	case EventSubscriptionCompleted:
		handlerErr = s.handleCompleted(sub, &gw, eventAt)
	case EventSubscriptionHalted:
		handlerErr = s.handleHalted(sub, &gw, eventAt)
	case EventInvoiceIssued:
		handlerErr = s.handleInvoiceIssued(sub, &gw, eventAt)
	}

	// The event log is appended regardless of handler outcome; the ingestion
	// path never prunes it (compaction belongs to maintenance).
	s.appendLog(sub.ID, envlp.Event, raw, eventAt, handlerErr == nil)

	return handlerErr
}

// applyGatewayState copies gateway-authoritative fields onto the local row
// using last-value-wins keyed by the gateway's own timestamp. Returns false
// when the event is not newer than what we already applied; duplicate or
// out-of-order delivery then leaves field state untouched and the caller
// skips its mutations too.
func applyGatewayState(sub *models.Subscription, gw *GatewaySubscription, eventAt time.Time) bool {
	if sub.LastWebhookAt != nil && !eventAt.After(*sub.LastWebhookAt) {
		log.Debugf("webhook: stale delivery for %s (%v < %v)", sub.GatewaySubscriptionID, eventAt, *sub.LastWebhookAt)
		return false
	}

	// Gateway-owned counters: set, never incremented.
	if gw.PaidCount > 0 {
		sub.PaidCount = gw.PaidCount
	}
	if gw.TotalCount > 0 {
		sub.TotalCount = gw.TotalCount
	}
	if gw.AuthAttempts > 0 {
		sub.AuthAttempts = gw.AuthAttempts
	}
	if gw.Quantity > 0 {
		sub.Quantity = gw.Quantity
	}

	startFallback := eventAt
	if sub.CurrentStart != nil {
		startFallback = *sub.CurrentStart
	}
	currentStart := ReconcileUnix(gw.CurrentStart, startFallback, "subscription.current_start")
	currentEnd := ReconcileUnix(gw.CurrentEnd, FallbackPeriodEnd(currentStart), "subscription.current_end")
	if currentEnd.Before(currentStart) {
		currentEnd = FallbackPeriodEnd(currentStart)
	}
	sub.CurrentStart = &currentStart
	sub.CurrentEnd = &currentEnd

	if gw.ChargeAt > 0 {
		t := ReconcileUnix(gw.ChargeAt, currentEnd, "subscription.charge_at")
		sub.ChargeAt = &t
	}
	if gw.StartAt > 0 {
		t := ReconcileUnix(gw.StartAt, currentStart, "subscription.start_at")
		sub.StartAt = &t
	}
	if gw.EndAt > 0 {
		t := ReconcileUnix(gw.EndAt, currentEnd, "subscription.end_at")
		sub.EndAt = &t
	}
	if gw.PlanID != "" {
		sub.GatewayPlanID = gw.PlanID
	}
	if gw.CustomerID != "" {
		sub.GatewayCustomerID = gw.CustomerID
	}

	at := eventAt
	sub.LastWebhookAt = &at
	return true
}

func (s *Service) handleCharged(sub *models.Subscription, envlp *WebhookEnvelope, eventAt time.Time) error {
	gw := envlp.Payload.Subscription.Entity
	if !applyGatewayState(sub, &gw, eventAt) {
		return nil
	}

	if next, ok := NextStatus(sub.Status, EventSubscriptionCharged); ok {
		sub.Status = next
		sub.ConsecutiveFailures = 0
		sub.RetryAttempts = 0
		sub.NextRetryAt = nil
	}
	if err := s.repo.SaveSubscription(sub); err != nil {
		return fmt.Errorf("charged: save subscription %s: %w", sub.GatewaySubscriptionID, err)
	}

	// Everything below is downstream of the core state write: failures are
	// logged, never propagated as a webhook-processing failure.
	pay := envlp.Payload.Payment.Entity
	if pay.ID != "" {
		txn := &models.PaymentTransaction{
			SubscriptionID:   sub.ID,
			GatewayPaymentID: pay.ID,
			Amount:           pay.Amount,
			Currency:         pay.Currency,
			Status:           pay.Status,
			PaidAt:           ReconcileUnix(pay.CreatedAt, eventAt, "payment.created_at"),
		}
		if _, err := s.repo.CreateTransactionIfNotExists(txn); err != nil {
			log.Errorf("charged: record transaction %s: %v", pay.ID, err)
		}
	}

	s.projectCommunity(sub, map[string]interface{}{
		"subscription_id":         sub.ID,
		"subscription_status":     models.CommunitySubStatusActive,
		"payment_status":          models.PaymentStatusPaid,
		"subscription_start_date": sub.CurrentStart,
		"subscription_end_date":   sub.CurrentEnd,
	})
	return nil
}

func (s *Service) handleFailed(sub *models.Subscription, gw *GatewaySubscription, eventAt, now time.Time) error {
	if !applyGatewayState(sub, gw, eventAt) {
		return nil
	}

	if next, ok := NextStatus(sub.Status, EventSubscriptionFailed); ok {
		sub.Status = next
		sub.ConsecutiveFailures++
		failedAt := now
		sub.LastFailureAt = &failedAt
		if !sub.RetryExhausted() {
			retryAt := now.Add(24 * time.Hour)
			sub.NextRetryAt = &retryAt
			sub.RetryAttempts++
		}
	}
	if err := s.repo.SaveSubscription(sub); err != nil {
		return fmt.Errorf("failed: save subscription %s: %w", sub.GatewaySubscriptionID, err)
	}

	s.projectCommunity(sub, map[string]interface{}{
		"subscription_status": models.CommunitySubStatusPastDue,
	})
	s.notifyAdmin(sub, models.NotificationPaymentFailed, 6*time.Hour,
		"Payment failed for your community",
		"A charge for your community subscription failed. We will retry automatically.")
	return nil
}

func (s *Service) handleCancelled(sub *models.Subscription, gw *GatewaySubscription, eventAt time.Time) error {
	if !applyGatewayState(sub, gw, eventAt) {
		return nil
	}

	if next, ok := NextStatus(sub.Status, EventSubscriptionCancelled); ok {
		sub.Status = next
		endedAt := ReconcileUnix(gw.EndedAt, eventAt, "subscription.ended_at")
		sub.EndedAt = &endedAt
	}
	if err := s.repo.SaveSubscription(sub); err != nil {
		return fmt.Errorf("cancelled: save subscription %s: %w", sub.GatewaySubscriptionID, err)
	}

	// Paid access runs out with the current period; only the mirror changes.
	s.projectCommunity(sub, map[string]interface{}{
		"subscription_status": models.CommunitySubStatusCancelled,
	})
	return nil
}

func (s *Service) handleActivated(sub *models.Subscription, gw *GatewaySubscription, eventAt time.Time) error {
	wasTerminal := sub.IsTerminal()
	if !applyGatewayState(sub, gw, eventAt) {
		return nil
	}

	sub.Status = models.SubscriptionStatusActive
	sub.ConsecutiveFailures = 0
	sub.RetryAttempts = 0
	sub.NextRetryAt = nil
	sub.EndedAt = nil
	if wasTerminal {
		// Intentional escape hatch out of a terminal state; logged distinctly
		// from a normal renewal.
		log.Infof("webhook: reactivating terminal subscription %s", sub.GatewaySubscriptionID)
	}
	if err := s.repo.SaveSubscription(sub); err != nil {
		return fmt.Errorf("activated: save subscription %s: %w", sub.GatewaySubscriptionID, err)
	}

	s.projectCommunity(sub, map[string]interface{}{
		"subscription_id":         sub.ID,
		"subscription_status":     models.CommunitySubStatusActive,
		"payment_status":          models.PaymentStatusPaid,
		"subscription_start_date": sub.CurrentStart,
		"subscription_end_date":   sub.CurrentEnd,
	})
	return nil
}

func (s *Service) handleCompleted(sub *models.Subscription, gw *GatewaySubscription, eventAt time.Time) error {
	if !applyGatewayState(sub, gw, eventAt) {
		return nil
	}

	if next, ok := NextStatus(sub.Status, EventSubscriptionCompleted); ok {
		sub.Status = next
		endedAt := ReconcileUnix(gw.EndedAt, eventAt, "subscription.ended_at")
		sub.EndedAt = &endedAt
	}
	if err := s.repo.SaveSubscription(sub); err != nil {
		return fmt.Errorf("completed: save subscription %s: %w", sub.GatewaySubscriptionID, err)
	}

	s.projectCommunity(sub, map[string]interface{}{
		"subscription_status": models.CommunitySubStatusSuspended,
		"payment_status":      models.PaymentStatusExpired,
	})
	return nil
}

func (s *Service) handleHalted(sub *models.Subscription, gw *GatewaySubscription, eventAt time.Time) error {
	if !applyGatewayState(sub, gw, eventAt) {
		return nil
	}

	if next, ok := NextStatus(sub.Status, EventSubscriptionHalted); ok {
		sub.Status = next
	}
	if err := s.repo.SaveSubscription(sub); err != nil {
		return fmt.Errorf("halted: save subscription %s: %w", sub.GatewaySubscriptionID, err)
	}

	s.projectCommunity(sub, map[string]interface{}{
		"subscription_status": models.CommunitySubStatusSuspended,
	})
	return nil
}

func (s *Service) handleInvoiceIssued(sub *models.Subscription, gw *GatewaySubscription, eventAt time.Time) error {
	// Informational only; we still fold in the entity so an invoice webhook
	// can heal timestamps after missed subscription events.
	if !applyGatewayState(sub, gw, eventAt) {
		return nil
	}
	if err := s.repo.SaveSubscription(sub); err != nil {
		return fmt.Errorf("invoice.issued: save subscription %s: %w", sub.GatewaySubscriptionID, err)
	}
	return nil
}

// ReactivateCommunity restores the paid projection of a community from its
// subscription. Calling it on an already-active community is a no-op.
func (s *Service) ReactivateCommunity(slug string) error {
	community, err := s.repo.GetCommunityBySlug(slug)
	if err != nil {
		return err
	}
	if community.PaymentStatus == models.PaymentStatusPaid &&
		community.SubscriptionStatus == models.CommunitySubStatusActive {
		return nil
	}
	if community.SubscriptionID == nil {
		return errors.New("community has no subscription to reactivate")
	}

	return s.repo.UpdateCommunityProjection(community.ID, map[string]interface{}{
		"subscription_status": models.CommunitySubStatusActive,
		"payment_status":      models.PaymentStatusPaid,
	})
}

func (s *Service) appendLog(subscriptionID uint, event string, raw []byte, receivedAt time.Time, processed bool) {
	entry := &models.SubscriptionWebhookEvent{
		SubscriptionID: subscriptionID,
		Event:          event,
		ReceivedAt:     receivedAt,
		Processed:      processed,
		Data:           string(raw),
	}
	if err := s.repo.AppendWebhookEvent(entry); err != nil {
		log.Errorf("webhook: append event log for subscription %d: %v", subscriptionID, err)
	}
}

func (s *Service) projectCommunity(sub *models.Subscription, fields map[string]interface{}) {
	if sub.CommunityID == nil {
		return
	}
	if err := s.repo.UpdateCommunityProjection(*sub.CommunityID, fields); err != nil {
		log.Errorf("webhook: community projection update for %d: %v", *sub.CommunityID, err)
	}
}

func (s *Service) notifyAdmin(sub *models.Subscription, notifType string, window time.Duration, subject, body string) {
	if s.notifier == nil {
		return
	}
	admin, err := s.repo.GetUserByID(sub.AdminID)
	if err != nil {
		log.Errorf("webhook: admin lookup for subscription %d: %v", sub.ID, err)
		return
	}
	if _, err := s.notifier.SendOnce(sub, admin.Email, notifType, window, subject, body); err != nil {
		log.Errorf("webhook: notify admin %d: %v", sub.AdminID, err)
	}
}
