package access

import (
	"errors"
	"testing"
	"time"

	"github.com/abbasshaikh29/TribeLab/app/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeSource struct {
	community    *models.Community
	communityErr error
	admin        *models.User
	adminErr     error
}

func (s *fakeSource) GetCommunityBySlug(slug string) (*models.Community, error) {
	if s.communityErr != nil {
		return nil, s.communityErr
	}
	return s.community, nil
}

func (s *fakeSource) GetUserByID(id uint) (*models.User, error) {
	if s.adminErr != nil {
		return nil, s.adminErr
	}
	return s.admin, nil
}

var gateNow = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func newTestGate(src Source) *Gate {
	g := NewGate(src)
	g.now = func() time.Time { return gateNow }
	return g
}

func TestEvaluateAllowsActivePayment(t *testing.T) {
	end := gateNow.Add(10 * 24 * time.Hour)
	gate := newTestGate(&fakeSource{
		community: &models.Community{
			ID: 1, Slug: "makers", AdminID: 42,
			PaymentStatus:       models.PaymentStatusPaid,
			SubscriptionEndDate: &end,
		},
		adminErr: gorm.ErrRecordNotFound,
	})

	d := gate.Evaluate("makers")
	assert.True(t, d.Allowed)
	assert.Empty(t, d.Reason)
}

func TestEvaluateAllowsActiveTrial(t *testing.T) {
	trialEnd := gateNow.Add(5 * 24 * time.Hour)
	gate := newTestGate(&fakeSource{
		community: &models.Community{ID: 1, Slug: "makers", AdminID: 42, PaymentStatus: models.PaymentStatusTrial},
		admin: &models.User{
			ID: 42, TrialActivated: true, TrialEndDate: &trialEnd,
		},
	})

	d := gate.Evaluate("makers")
	assert.True(t, d.Allowed)
}

func TestEvaluateDeniesLapsedCommunityAsSuspended(t *testing.T) {
	subID := uint(9)
	gate := newTestGate(&fakeSource{
		community: &models.Community{
			ID: 1, Slug: "makers", AdminID: 42,
			SubscriptionID: &subID,
			PaymentStatus:  models.PaymentStatusExpired,
		},
		admin: &models.User{ID: 42, TrialUsed: true},
	})

	d := gate.Evaluate("makers")
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonSuspended, d.Reason)
	assert.Equal(t, "/billing/makers", d.RedirectHint)
}

func TestEvaluateDeniesNeverBilledCommunity(t *testing.T) {
	gate := newTestGate(&fakeSource{
		community: &models.Community{ID: 1, Slug: "makers", AdminID: 42, PaymentStatus: models.PaymentStatusUnpaid},
		admin:     &models.User{ID: 42},
	})

	d := gate.Evaluate("makers")
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonNoAccess, d.Reason)
}

func TestEvaluateUnknownCommunityDenied(t *testing.T) {
	gate := newTestGate(&fakeSource{communityErr: gorm.ErrRecordNotFound})

	d := gate.Evaluate("ghost")
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonNoAccess, d.Reason)
	assert.Equal(t, "/billing/ghost", d.RedirectHint)
}

func TestEvaluateFailsOpenOnInfrastructureError(t *testing.T) {
	gate := newTestGate(&fakeSource{communityErr: errors.New("connection refused")})

	d := gate.Evaluate("makers")
	assert.True(t, d.Allowed, "billing outage must not lock communities out")
}

func TestEvaluateFailsOpenOnAdminLookupError(t *testing.T) {
	gate := newTestGate(&fakeSource{
		community: &models.Community{ID: 1, Slug: "makers", AdminID: 42, PaymentStatus: models.PaymentStatusUnpaid},
		adminErr:  errors.New("connection refused"),
	})

	d := gate.Evaluate("makers")
	assert.True(t, d.Allowed)
}

func TestStatusForActiveSubscription(t *testing.T) {
	end := gateNow.Add(10*24*time.Hour + time.Hour)
	gate := newTestGate(&fakeSource{
		community: &models.Community{
			ID: 1, Slug: "makers", AdminID: 42,
			PaymentStatus:       models.PaymentStatusPaid,
			SubscriptionEndDate: &end,
		},
		admin: &models.User{ID: 42},
	})

	st, err := gate.Status("makers")
	require.NoError(t, err)
	assert.True(t, st.Found)
	assert.True(t, st.HasActiveSubscription)
	assert.True(t, st.HasActiveTrialOrPayment)
	assert.False(t, st.Suspended)
	assert.Equal(t, 10, st.DaysRemaining)
}

func TestStatusForUnknownCommunity(t *testing.T) {
	gate := newTestGate(&fakeSource{communityErr: gorm.ErrRecordNotFound})

	st, err := gate.Status("ghost")
	require.NoError(t, err)
	assert.False(t, st.Found)
}

func TestStatusDoesNotFailOpen(t *testing.T) {
	gate := newTestGate(&fakeSource{communityErr: errors.New("connection refused")})

	_, err := gate.Status("makers")
	require.Error(t, err, "the UI view reports errors instead of guessing")
}

func TestStatusSuspendedAfterTrialUse(t *testing.T) {
	pastTrial := gateNow.Add(-24 * time.Hour)
	gate := newTestGate(&fakeSource{
		community: &models.Community{
			ID: 1, Slug: "makers", AdminID: 42,
			PaymentStatus: models.PaymentStatusUnpaid,
			TrialEndDate:  &pastTrial,
		},
		admin: &models.User{ID: 42, TrialActivated: true, TrialUsed: true, TrialEndDate: &pastTrial},
	})

	st, err := gate.Status("makers")
	require.NoError(t, err)
	assert.True(t, st.Found)
	assert.False(t, st.HasActiveTrialOrPayment)
	assert.True(t, st.Suspended)
	assert.Equal(t, ReasonSuspended, st.SuspensionReason)
}
