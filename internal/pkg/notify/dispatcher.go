package notify

import (
	"time"

	"github.com/abbasshaikh29/TribeLab/app/models"
	"github.com/abbasshaikh29/TribeLab/internal/pkg/mail"
	"github.com/gofiber/fiber/v2/log"
)

// NotificationLog is the persistence surface needed for dedup windows.
type NotificationLog interface {
	LastNotificationAt(subscriptionID uint, notifType string) (*time.Time, error)
	RecordNotification(n *models.SubscriptionNotification) error
}

// Dispatcher sends user-facing billing messages. Delivery is at-least-once
// from the mailer's point of view; the at-most-once-per-window guarantee is
// enforced here against the notification log.
type Dispatcher struct {
	store NotificationLog
	send  func(to, subject, body string) error
	now   func() time.Time
}

// NewDispatcher creates a dispatcher delivering over SMTP.
func NewDispatcher(store NotificationLog) *Dispatcher {
	return &Dispatcher{
		store: store,
		send:  mail.SendMail,
		now:   time.Now,
	}
}

// NewDispatcherWithSender creates a dispatcher with a custom transport,
// mainly for tests.
func NewDispatcherWithSender(store NotificationLog, send func(to, subject, body string) error) *Dispatcher {
	return &Dispatcher{store: store, send: send, now: time.Now}
}

// Send delivers immediately with no dedup.
func (d *Dispatcher) Send(to, subject, body string) error {
	return d.send(to, subject, body)
}

// SendOnce delivers unless a notification of the same type was already
// recorded for this subscription inside the window. Returns whether a message
// went out.
func (d *Dispatcher) SendOnce(sub *models.Subscription, to, notifType string, window time.Duration, subject, body string) (bool, error) {
	last, err := d.store.LastNotificationAt(sub.ID, notifType)
	if err != nil {
		return false, err
	}
	now := d.now()
	if last != nil && now.Sub(*last) < window {
		log.Debugf("notify: suppressing %s for subscription %d, last sent %v", notifType, sub.ID, *last)
		return false, nil
	}

	if err := d.send(to, subject, body); err != nil {
		return false, err
	}
	if err := d.store.RecordNotification(&models.SubscriptionNotification{
		SubscriptionID: sub.ID,
		Type:           notifType,
		Channel:        models.NotificationChannelEmail,
		SentAt:         now,
	}); err != nil {
		// The mail already left; a failed record only risks one extra message
		// next window.
		log.Errorf("notify: record %s for subscription %d: %v", notifType, sub.ID, err)
	}
	return true, nil
}
