package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptionIsTerminal(t *testing.T) {
	for _, status := range []string{SubscriptionStatusCancelled, SubscriptionStatusCompleted, SubscriptionStatusExpired} {
		sub := &Subscription{Status: status}
		assert.True(t, sub.IsTerminal(), "status %q", status)
	}
	for _, status := range []string{SubscriptionStatusCreated, SubscriptionStatusTrial, SubscriptionStatusActive, SubscriptionStatusPastDue, SubscriptionStatusHalted} {
		sub := &Subscription{Status: status}
		assert.False(t, sub.IsTerminal(), "status %q", status)
	}
}

func TestSubscriptionRetryExhausted(t *testing.T) {
	sub := &Subscription{RetryAttempts: 2, MaxRetryAttempts: 3}
	assert.False(t, sub.RetryExhausted())

	sub.RetryAttempts = 3
	assert.True(t, sub.RetryExhausted())

	// Zero ceiling falls back to the default of 3.
	sub = &Subscription{RetryAttempts: 2, MaxRetryAttempts: 0}
	assert.False(t, sub.RetryExhausted())
	sub.RetryAttempts = 3
	assert.True(t, sub.RetryExhausted())
}
