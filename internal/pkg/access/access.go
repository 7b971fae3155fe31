package access

import (
	"errors"
	"fmt"
	"time"

	"github.com/abbasshaikh29/TribeLab/app/models"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// Denial reasons surfaced to the request layer.
const (
	ReasonSuspended = "suspended"
	ReasonNoAccess  = "no_active_trial_or_payment"
)

// Source is the read surface the gate evaluates against. It only ever touches
// the denormalized community projection and the admin trial clock; the
// gateway is never consulted on the request path.
type Source interface {
	GetCommunityBySlug(slug string) (*models.Community, error)
	GetUserByID(id uint) (*models.User, error)
}

// Decision is the gate's answer for one request.
type Decision struct {
	Allowed      bool   `json:"allowed"`
	Reason       string `json:"reason,omitempty"`
	RedirectHint string `json:"redirectHint,omitempty"`
}

// Status is the richer read-only view for UI consumption.
type Status struct {
	Found                   bool   `json:"found"`
	Suspended               bool   `json:"suspended"`
	SuspensionReason        string `json:"suspensionReason,omitempty"`
	HasActiveTrialOrPayment bool   `json:"hasActiveTrialOrPayment"`
	HasActiveSubscription   bool   `json:"hasActiveSubscription"`
	HasActiveTrial          bool   `json:"hasActiveTrial"`
	DaysRemaining           int    `json:"daysRemaining"`
}

// Gate derives allow/deny for a community from local state only.
type Gate struct {
	src Source
	now func() time.Time
}

func NewGate(src Source) *Gate {
	return &Gate{src: src, now: time.Now}
}

// Evaluate decides whether requests into the community's namespace are
// served. Infrastructure errors fail open: a broken billing lookup must never
// lock every community out of the platform.
func (g *Gate) Evaluate(slug string) Decision {
	community, err := g.src.GetCommunityBySlug(slug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Decision{Allowed: false, Reason: ReasonNoAccess, RedirectHint: billingPath(slug)}
		}
		log.Errorf("access gate: community lookup for %q failed, failing open: %v", slug, err)
		return Decision{Allowed: true}
	}

	now := g.now()
	if community.HasActivePayment(now) {
		return Decision{Allowed: true}
	}

	admin, err := g.src.GetUserByID(community.AdminID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Errorf("access gate: admin lookup for %q failed, failing open: %v", slug, err)
			return Decision{Allowed: true}
		}
	} else if admin.HasActiveTrial(now) {
		return Decision{Allowed: true}
	}

	reason := ReasonNoAccess
	if community.HadPriorBilling() || (admin != nil && admin.TrialUsed) {
		reason = ReasonSuspended
	}
	return Decision{Allowed: false, Reason: reason, RedirectHint: billingPath(slug)}
}

// Status reports the gate's view for UI display. Unlike Evaluate it does not
// fail open; lookup errors are returned so the UI can show an honest state.
func (g *Gate) Status(slug string) (*Status, error) {
	community, err := g.src.GetCommunityBySlug(slug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &Status{Found: false}, nil
		}
		return nil, err
	}

	now := g.now()
	st := &Status{Found: true}
	st.HasActiveSubscription = community.HasActivePayment(now)

	admin, err := g.src.GetUserByID(community.AdminID)
	if err == nil {
		st.HasActiveTrial = admin.HasActiveTrial(now)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	st.HasActiveTrialOrPayment = st.HasActiveSubscription || st.HasActiveTrial
	if !st.HasActiveTrialOrPayment {
		decision := g.Evaluate(slug)
		st.Suspended = decision.Reason == ReasonSuspended
		st.SuspensionReason = decision.Reason
	}

	switch {
	case st.HasActiveSubscription && community.SubscriptionEndDate != nil:
		st.DaysRemaining = daysUntil(now, *community.SubscriptionEndDate)
	case st.HasActiveTrial && admin != nil && admin.TrialEndDate != nil:
		st.DaysRemaining = daysUntil(now, *admin.TrialEndDate)
	}
	return st, nil
}

func daysUntil(now, t time.Time) int {
	d := int(t.Sub(now).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

func billingPath(slug string) string {
	return fmt.Sprintf("/billing/%s", slug)
}
