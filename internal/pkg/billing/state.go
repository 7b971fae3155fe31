package billing

import (
	"strings"

	"github.com/abbasshaikh29/TribeLab/app/models"
)

// IsTerminalStatus reports whether a status admits no further event-driven
// transitions except the explicit activated reactivation path.
func IsTerminalStatus(status string) bool {
	switch status {
	case models.SubscriptionStatusCancelled,
		models.SubscriptionStatusCompleted,
		models.SubscriptionStatusExpired:
		return true
	default:
		return false
	}
}

// NextStatus applies the subscription state machine: given the current local
// status and an inbound event, it returns the resulting status and whether the
// transition is permitted. Terminal states never re-open except via
// subscription.activated.
func NextStatus(current, event string) (string, bool) {
	if IsTerminalStatus(current) && event != EventSubscriptionActivated {
		return current, false
	}

	switch event {
	case EventSubscriptionCharged:
		switch current {
		case models.SubscriptionStatusCreated,
			models.SubscriptionStatusTrial,
			models.SubscriptionStatusActive,
			models.SubscriptionStatusPastDue,
			models.SubscriptionStatusHalted:
			return models.SubscriptionStatusActive, true
		}
		return current, false
	case EventSubscriptionFailed:
		switch current {
		case models.SubscriptionStatusActive, models.SubscriptionStatusPastDue:
			return models.SubscriptionStatusPastDue, true
		}
		return current, false
	case EventSubscriptionCancelled:
		return models.SubscriptionStatusCancelled, true
	case EventSubscriptionActivated:
		return models.SubscriptionStatusActive, true
	case EventSubscriptionCompleted:
		return models.SubscriptionStatusCompleted, true
	case EventSubscriptionHalted:
		return models.SubscriptionStatusHalted, true
	default:
		return current, false
	}
}

// MapGatewayStatus translates a status string from pull reconciliation into
// the local vocabulary. Unknown values map to empty, meaning "leave as is".
func MapGatewayStatus(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "created", "authenticated":
		return models.SubscriptionStatusCreated
	case "active", "resumed":
		return models.SubscriptionStatusActive
	case "pending":
		return models.SubscriptionStatusPastDue
	case "halted", "paused":
		return models.SubscriptionStatusHalted
	case "cancelled":
		return models.SubscriptionStatusCancelled
	case "completed":
		return models.SubscriptionStatusCompleted
	case "expired":
		return models.SubscriptionStatusExpired
	default:
		return ""
	}
}
