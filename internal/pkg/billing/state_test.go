package billing

import (
	"testing"

	"github.com/abbasshaikh29/TribeLab/app/models"
)

func TestNextStatus(t *testing.T) {
	tests := []struct {
		current string
		event   string
		want    string
		ok      bool
	}{
		{current: models.SubscriptionStatusCreated, event: EventSubscriptionCharged, want: models.SubscriptionStatusActive, ok: true},
		{current: models.SubscriptionStatusTrial, event: EventSubscriptionCharged, want: models.SubscriptionStatusActive, ok: true},
		{current: models.SubscriptionStatusPastDue, event: EventSubscriptionCharged, want: models.SubscriptionStatusActive, ok: true},
		{current: models.SubscriptionStatusHalted, event: EventSubscriptionCharged, want: models.SubscriptionStatusActive, ok: true},
		{current: models.SubscriptionStatusActive, event: EventSubscriptionFailed, want: models.SubscriptionStatusPastDue, ok: true},
		{current: models.SubscriptionStatusPastDue, event: EventSubscriptionFailed, want: models.SubscriptionStatusPastDue, ok: true},
		{current: models.SubscriptionStatusCreated, event: EventSubscriptionFailed, want: models.SubscriptionStatusCreated, ok: false},
		{current: models.SubscriptionStatusActive, event: EventSubscriptionCancelled, want: models.SubscriptionStatusCancelled, ok: true},
		{current: models.SubscriptionStatusPastDue, event: EventSubscriptionHalted, want: models.SubscriptionStatusHalted, ok: true},
		{current: models.SubscriptionStatusActive, event: EventSubscriptionCompleted, want: models.SubscriptionStatusCompleted, ok: true},
		{current: models.SubscriptionStatusActive, event: "subscription.bogus", want: models.SubscriptionStatusActive, ok: false},
	}

	for _, tt := range tests {
		got, ok := NextStatus(tt.current, tt.event)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("NextStatus(%q, %q) = (%q, %t), want (%q, %t)", tt.current, tt.event, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNextStatusTerminalStatesOnlyReopenViaActivated(t *testing.T) {
	terminals := []string{
		models.SubscriptionStatusCancelled,
		models.SubscriptionStatusCompleted,
		models.SubscriptionStatusExpired,
	}
	events := []string{
		EventSubscriptionCharged,
		EventSubscriptionFailed,
		EventSubscriptionCancelled,
		EventSubscriptionCompleted,
		EventSubscriptionHalted,
		EventInvoiceIssued,
	}

	for _, status := range terminals {
		for _, event := range events {
			got, ok := NextStatus(status, event)
			if ok || got != status {
				t.Fatalf("NextStatus(%q, %q) = (%q, %t), terminal state must not move", status, event, got, ok)
			}
		}
		got, ok := NextStatus(status, EventSubscriptionActivated)
		if !ok || got != models.SubscriptionStatusActive {
			t.Fatalf("NextStatus(%q, activated) = (%q, %t), want reactivation to active", status, got, ok)
		}
	}
}

func TestIsTerminalStatus(t *testing.T) {
	for _, status := range []string{
		models.SubscriptionStatusCancelled,
		models.SubscriptionStatusCompleted,
		models.SubscriptionStatusExpired,
	} {
		if !IsTerminalStatus(status) {
			t.Fatalf("expected status %q to be terminal", status)
		}
	}
	for _, status := range []string{
		models.SubscriptionStatusCreated,
		models.SubscriptionStatusTrial,
		models.SubscriptionStatusActive,
		models.SubscriptionStatusPastDue,
		models.SubscriptionStatusHalted,
	} {
		if IsTerminalStatus(status) {
			t.Fatalf("expected status %q to be non-terminal", status)
		}
	}
}

func TestMapGatewayStatus(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "active", want: models.SubscriptionStatusActive},
		{in: "Resumed", want: models.SubscriptionStatusActive},
		{in: "pending", want: models.SubscriptionStatusPastDue},
		{in: "authenticated", want: models.SubscriptionStatusCreated},
		{in: "halted", want: models.SubscriptionStatusHalted},
		{in: "paused", want: models.SubscriptionStatusHalted},
		{in: " cancelled ", want: models.SubscriptionStatusCancelled},
		{in: "completed", want: models.SubscriptionStatusCompleted},
		{in: "expired", want: models.SubscriptionStatusExpired},
		{in: "something_else", want: ""},
		{in: "", want: ""},
	}

	for _, tt := range tests {
		if got := MapGatewayStatus(tt.in); got != tt.want {
			t.Fatalf("MapGatewayStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
