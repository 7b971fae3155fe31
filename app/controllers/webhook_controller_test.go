package controllers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWebhookEventType(t *testing.T) {
	assert.Equal(t, "subscription.charged", webhookEventType([]byte(`{"event":"subscription.charged"}`)))
	assert.Equal(t, "unknown", webhookEventType([]byte(`{"event":""}`)))
	assert.Equal(t, "unknown", webhookEventType([]byte(`{not json`)))
	assert.Equal(t, "unknown", webhookEventType([]byte(`{}`)))
}
