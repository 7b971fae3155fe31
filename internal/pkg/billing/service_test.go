package billing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/abbasshaikh29/TribeLab/app/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type projectionUpdate struct {
	communityID uint
	fields      map[string]interface{}
}

// fakeRepo is an in-memory Repository for service and maintenance tests.
type fakeRepo struct {
	sub       *models.Subscription
	lookupErr error
	saveErr   error
	saves     int
	savedSubs []*models.Subscription

	events    []*models.SubscriptionWebhookEvent
	notifs    []*models.SubscriptionNotification
	lastNotif map[string]time.Time
	txns      map[string]*models.PaymentTransaction

	communities map[uint]*models.Community
	users       map[uint]*models.User
	projections []projectionUpdate

	stale       []models.Subscription
	staleLimit  int
	renewal     []models.Subscription
	retryDue    []models.Subscription
	expirable   []models.Subscription
	overflowing []uint
	trims       map[uint]int
	listErr     error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		lastNotif:   map[string]time.Time{},
		txns:        map[string]*models.PaymentTransaction{},
		communities: map[uint]*models.Community{},
		users:       map[uint]*models.User{},
		trims:       map[uint]int{},
	}
}

func (r *fakeRepo) GetSubscriptionByGatewayID(gatewayID string) (*models.Subscription, error) {
	if r.lookupErr != nil {
		return nil, r.lookupErr
	}
	if r.sub == nil || r.sub.GatewaySubscriptionID != gatewayID {
		return nil, gorm.ErrRecordNotFound
	}
	return r.sub, nil
}

func (r *fakeRepo) SaveSubscription(sub *models.Subscription) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saves++
	r.savedSubs = append(r.savedSubs, sub)
	return nil
}

func (r *fakeRepo) AppendWebhookEvent(event *models.SubscriptionWebhookEvent) error {
	r.events = append(r.events, event)
	return nil
}

func (r *fakeRepo) ListStaleSubscriptions(statuses []string, staleBefore time.Time, limit int) ([]models.Subscription, error) {
	r.staleLimit = limit
	if r.listErr != nil {
		return nil, r.listErr
	}
	if len(r.stale) > limit {
		return r.stale[:limit], nil
	}
	return r.stale, nil
}

func (r *fakeRepo) ListRenewalWindow(from, to time.Time) ([]models.Subscription, error) {
	return r.renewal, r.listErr
}

func (r *fakeRepo) ListRetryDue(until time.Time) ([]models.Subscription, error) {
	return r.retryDue, r.listErr
}

func (r *fakeRepo) ListExpirable(now time.Time) ([]models.Subscription, error) {
	return r.expirable, r.listErr
}

func (r *fakeRepo) ListOverflowingEventLogs(cap int) ([]uint, error) {
	return r.overflowing, r.listErr
}

func (r *fakeRepo) TrimWebhookEvents(subscriptionID uint, cap int) (int, error) {
	trimmed := r.trims[subscriptionID]
	return trimmed, nil
}

func (r *fakeRepo) LastNotificationAt(subscriptionID uint, notifType string) (*time.Time, error) {
	if at, ok := r.lastNotif[fmt.Sprintf("%d:%s", subscriptionID, notifType)]; ok {
		return &at, nil
	}
	return nil, nil
}

func (r *fakeRepo) RecordNotification(n *models.SubscriptionNotification) error {
	r.notifs = append(r.notifs, n)
	r.lastNotif[fmt.Sprintf("%d:%s", n.SubscriptionID, n.Type)] = n.SentAt
	return nil
}

func (r *fakeRepo) CreateTransactionIfNotExists(txn *models.PaymentTransaction) (bool, error) {
	if _, exists := r.txns[txn.GatewayPaymentID]; exists {
		return false, nil
	}
	r.txns[txn.GatewayPaymentID] = txn
	return true, nil
}

func (r *fakeRepo) GetCommunityByID(id uint) (*models.Community, error) {
	if c, ok := r.communities[id]; ok {
		return c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) GetCommunityBySlug(slug string) (*models.Community, error) {
	for _, c := range r.communities {
		if c.Slug == slug {
			return c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) SaveCommunity(c *models.Community) error {
	r.communities[c.ID] = c
	return nil
}

func (r *fakeRepo) UpdateCommunityProjection(id uint, fields map[string]interface{}) error {
	r.projections = append(r.projections, projectionUpdate{communityID: id, fields: fields})
	return nil
}

func (r *fakeRepo) GetUserByID(id uint) (*models.User, error) {
	if u, ok := r.users[id]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) SaveUser(u *models.User) error {
	r.users[u.ID] = u
	return nil
}

type sentNotice struct {
	subID     uint
	to        string
	notifType string
	window    time.Duration
}

type fakeNotifier struct {
	sent     []sentNotice
	suppress bool
	err      error
}

func (n *fakeNotifier) SendOnce(sub *models.Subscription, to, notifType string, window time.Duration, subject, body string) (bool, error) {
	if n.err != nil {
		return false, n.err
	}
	if n.suppress {
		return false, nil
	}
	n.sent = append(n.sent, sentNotice{subID: sub.ID, to: to, notifType: notifType, window: window})
	return true, nil
}

type fakeGateway struct {
	subs  map[string]*GatewaySubscription
	errs  map[string]error
	calls int
}

func (g *fakeGateway) FetchSubscription(ctx context.Context, subscriptionID string) (*GatewaySubscription, error) {
	g.calls++
	if err, ok := g.errs[subscriptionID]; ok {
		return nil, err
	}
	if gw, ok := g.subs[subscriptionID]; ok {
		return gw, nil
	}
	return nil, fmt.Errorf("gateway: subscription %s not found", subscriptionID)
}

var testNow = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func newTestService(repo *fakeRepo, notifier Notifier) *Service {
	svc := NewService(repo, notifier)
	svc.now = func() time.Time { return testNow }
	return svc
}

func trackedSubscription() *models.Subscription {
	communityID := uint(7)
	return &models.Subscription{
		ID:                    1,
		GatewaySubscriptionID: "sub_123",
		AdminID:               42,
		CommunityID:           &communityID,
		Status:                models.SubscriptionStatusActive,
		MaxRetryAttempts:      3,
	}
}

func chargedBody(createdAt int64, paidCount int, paymentID string) []byte {
	payment := ""
	if paymentID != "" {
		payment = fmt.Sprintf(`,"payment":{"entity":{"id":%q,"amount":99900,"currency":"INR","status":"captured","created_at":%d}}`, paymentID, createdAt)
	}
	return []byte(fmt.Sprintf(`{
		"event": "subscription.charged",
		"created_at": %d,
		"payload": {
			"subscription": {"entity": {
				"id": "sub_123",
				"status": "active",
				"current_start": %d,
				"current_end": %d,
				"paid_count": %d,
				"total_count": 12
			}}%s
		}
	}`, createdAt, createdAt, createdAt+30*24*3600, paidCount, payment))
}

func eventBody(event string, createdAt int64) []byte {
	return []byte(fmt.Sprintf(`{
		"event": %q,
		"created_at": %d,
		"payload": {
			"subscription": {"entity": {"id": "sub_123", "ended_at": %d}}
		}
	}`, event, createdAt, createdAt))
}

func TestProcessEventChargedActivatesSubscription(t *testing.T) {
	repo := newFakeRepo()
	sub := trackedSubscription()
	sub.Status = models.SubscriptionStatusPastDue
	sub.ConsecutiveFailures = 2
	sub.RetryAttempts = 1
	retryAt := testNow.Add(time.Hour)
	sub.NextRetryAt = &retryAt
	repo.sub = sub

	svc := newTestService(repo, &fakeNotifier{})
	createdAt := testNow.Add(-time.Minute).Unix()

	err := svc.ProcessEvent(context.Background(), chargedBody(createdAt, 3, "pay_1"))
	require.NoError(t, err)

	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, 3, sub.PaidCount)
	assert.Equal(t, 12, sub.TotalCount)
	assert.Equal(t, 0, sub.ConsecutiveFailures)
	assert.Equal(t, 0, sub.RetryAttempts)
	assert.Nil(t, sub.NextRetryAt)
	require.NotNil(t, sub.CurrentStart)
	require.NotNil(t, sub.CurrentEnd)
	assert.True(t, sub.CurrentEnd.After(*sub.CurrentStart))
	assert.Equal(t, 1, repo.saves)

	require.Len(t, repo.events, 1)
	assert.Equal(t, EventSubscriptionCharged, repo.events[0].Event)
	assert.True(t, repo.events[0].Processed)

	require.Len(t, repo.txns, 1)
	assert.Equal(t, int64(99900), repo.txns["pay_1"].Amount)

	require.Len(t, repo.projections, 1)
	assert.Equal(t, uint(7), repo.projections[0].communityID)
	assert.Equal(t, models.PaymentStatusPaid, repo.projections[0].fields["payment_status"])
}

func TestProcessEventChargedIdempotentOnRedelivery(t *testing.T) {
	repo := newFakeRepo()
	repo.sub = trackedSubscription()
	svc := newTestService(repo, &fakeNotifier{})

	body := chargedBody(testNow.Add(-time.Minute).Unix(), 3, "pay_1")
	require.NoError(t, svc.ProcessEvent(context.Background(), body))
	require.NoError(t, svc.ProcessEvent(context.Background(), body))

	assert.Equal(t, 3, repo.sub.PaidCount, "gateway counter must be set, not incremented")
	assert.Equal(t, 1, repo.saves, "redelivery must not rewrite state")
	assert.Len(t, repo.txns, 1, "payment must be recorded once")
	assert.Len(t, repo.events, 2, "event log is appended unconditionally")
}

func TestProcessEventOutOfOrderDeliveryIgnored(t *testing.T) {
	repo := newFakeRepo()
	sub := trackedSubscription()
	newer := testNow.Add(-time.Minute)
	sub.LastWebhookAt = &newer
	sub.PaidCount = 5
	repo.sub = sub

	svc := newTestService(repo, &fakeNotifier{})
	stale := eventBody(EventSubscriptionCancelled, testNow.Add(-2*time.Hour).Unix())

	require.NoError(t, svc.ProcessEvent(context.Background(), stale))

	assert.Equal(t, models.SubscriptionStatusActive, sub.Status, "stale cancel must not change status")
	assert.Equal(t, 5, sub.PaidCount)
	assert.Equal(t, 0, repo.saves)
	assert.Len(t, repo.events, 1)
}

func TestProcessEventUnknownEventTypeAcked(t *testing.T) {
	repo := newFakeRepo()
	repo.sub = trackedSubscription()
	svc := newTestService(repo, &fakeNotifier{})

	err := svc.ProcessEvent(context.Background(), []byte(`{"event":"order.paid","created_at":1767225600,"payload":{}}`))
	require.NoError(t, err)
	assert.Equal(t, 0, repo.saves)
	assert.Empty(t, repo.events)
}

func TestProcessEventUntrackedSubscriptionAcked(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeNotifier{})

	err := svc.ProcessEvent(context.Background(), chargedBody(testNow.Unix(), 1, ""))
	require.NoError(t, err, "webhook for unknown subscription must be acknowledged")
	assert.Equal(t, 0, repo.saves)
}

func TestProcessEventMalformedPayloadAcked(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeNotifier{})

	require.NoError(t, svc.ProcessEvent(context.Background(), []byte(`{not json`)))
	require.NoError(t, svc.ProcessEvent(context.Background(), []byte(`{"created_at":123}`)))
	assert.Equal(t, 0, repo.saves)
}

func TestProcessEventLookupErrorPropagates(t *testing.T) {
	repo := newFakeRepo()
	repo.lookupErr = errors.New("connection refused")
	svc := newTestService(repo, &fakeNotifier{})

	err := svc.ProcessEvent(context.Background(), chargedBody(testNow.Unix(), 1, ""))
	require.Error(t, err, "datastore failure must reach the gateway as an error")
}

func TestProcessEventFailedSchedulesRetry(t *testing.T) {
	repo := newFakeRepo()
	sub := trackedSubscription()
	repo.sub = sub
	repo.users[42] = &models.User{ID: 42, Email: "admin@example.com"}
	notifier := &fakeNotifier{}
	svc := newTestService(repo, notifier)

	err := svc.ProcessEvent(context.Background(), eventBody(EventSubscriptionFailed, testNow.Add(-time.Minute).Unix()))
	require.NoError(t, err)

	assert.Equal(t, models.SubscriptionStatusPastDue, sub.Status)
	assert.Equal(t, 1, sub.ConsecutiveFailures)
	assert.Equal(t, 1, sub.RetryAttempts)
	require.NotNil(t, sub.NextRetryAt)
	assert.Equal(t, testNow.Add(24*time.Hour), *sub.NextRetryAt)
	require.NotNil(t, sub.LastFailureAt)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, models.NotificationPaymentFailed, notifier.sent[0].notifType)
	assert.Equal(t, "admin@example.com", notifier.sent[0].to)
	assert.Equal(t, 6*time.Hour, notifier.sent[0].window)
}

func TestProcessEventFailedStopsRetryAtCeiling(t *testing.T) {
	repo := newFakeRepo()
	sub := trackedSubscription()
	sub.Status = models.SubscriptionStatusPastDue
	sub.RetryAttempts = 3
	sub.ConsecutiveFailures = 3
	repo.sub = sub
	repo.users[42] = &models.User{ID: 42, Email: "admin@example.com"}
	svc := newTestService(repo, &fakeNotifier{})

	err := svc.ProcessEvent(context.Background(), eventBody(EventSubscriptionFailed, testNow.Add(-time.Minute).Unix()))
	require.NoError(t, err)

	assert.Equal(t, 3, sub.RetryAttempts, "retry budget must not exceed the ceiling")
	assert.Nil(t, sub.NextRetryAt, "no further retry is scheduled once exhausted")
	assert.Equal(t, 4, sub.ConsecutiveFailures)
}

func TestProcessEventActivatedReopensTerminal(t *testing.T) {
	repo := newFakeRepo()
	sub := trackedSubscription()
	sub.Status = models.SubscriptionStatusCancelled
	endedAt := testNow.Add(-48 * time.Hour)
	sub.EndedAt = &endedAt
	sub.RetryAttempts = 3
	repo.sub = sub
	svc := newTestService(repo, &fakeNotifier{})

	err := svc.ProcessEvent(context.Background(), eventBody(EventSubscriptionActivated, testNow.Add(-time.Minute).Unix()))
	require.NoError(t, err)

	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	assert.Nil(t, sub.EndedAt)
	assert.Equal(t, 0, sub.RetryAttempts)
	require.Len(t, repo.projections, 1)
	assert.Equal(t, models.PaymentStatusPaid, repo.projections[0].fields["payment_status"])
}

func TestProcessEventCancelledIsTerminal(t *testing.T) {
	repo := newFakeRepo()
	sub := trackedSubscription()
	repo.sub = sub
	svc := newTestService(repo, &fakeNotifier{})

	base := testNow.Add(-time.Hour).Unix()
	require.NoError(t, svc.ProcessEvent(context.Background(), eventBody(EventSubscriptionCancelled, base)))
	assert.Equal(t, models.SubscriptionStatusCancelled, sub.Status)
	require.NotNil(t, sub.EndedAt)

	// A later charged event must not move a cancelled subscription.
	require.NoError(t, svc.ProcessEvent(context.Background(), chargedBody(base+60, 9, "")))
	assert.Equal(t, models.SubscriptionStatusCancelled, sub.Status)
}

func TestProcessEventCurrentEndNeverBeforeCurrentStart(t *testing.T) {
	repo := newFakeRepo()
	sub := trackedSubscription()
	repo.sub = sub
	svc := newTestService(repo, &fakeNotifier{})

	start := testNow.Add(-time.Minute).Unix()
	body := []byte(fmt.Sprintf(`{
		"event": "subscription.charged",
		"created_at": %d,
		"payload": {
			"subscription": {"entity": {
				"id": "sub_123",
				"current_start": %d,
				"current_end": %d
			}}
		}
	}`, start, start, start-3600))

	require.NoError(t, svc.ProcessEvent(context.Background(), body))
	require.NotNil(t, sub.CurrentStart)
	require.NotNil(t, sub.CurrentEnd)
	assert.Equal(t, sub.CurrentStart.Add(FallbackPeriod), *sub.CurrentEnd)
}

func TestReactivateCommunity(t *testing.T) {
	repo := newFakeRepo()
	subID := uint(1)
	repo.communities[7] = &models.Community{
		ID:                 7,
		Slug:               "makers",
		SubscriptionID:     &subID,
		SubscriptionStatus: models.CommunitySubStatusSuspended,
		PaymentStatus:      models.PaymentStatusExpired,
	}
	svc := newTestService(repo, &fakeNotifier{})

	require.NoError(t, svc.ReactivateCommunity("makers"))
	require.Len(t, repo.projections, 1)
	assert.Equal(t, models.CommunitySubStatusActive, repo.projections[0].fields["subscription_status"])

	// Already active: no further writes.
	repo.communities[7].SubscriptionStatus = models.CommunitySubStatusActive
	repo.communities[7].PaymentStatus = models.PaymentStatusPaid
	require.NoError(t, svc.ReactivateCommunity("makers"))
	assert.Len(t, repo.projections, 1)
}

func TestReactivateCommunityWithoutSubscription(t *testing.T) {
	repo := newFakeRepo()
	repo.communities[7] = &models.Community{ID: 7, Slug: "makers"}
	svc := newTestService(repo, &fakeNotifier{})

	err := svc.ReactivateCommunity("makers")
	require.Error(t, err)
	assert.Empty(t, repo.projections)
}
