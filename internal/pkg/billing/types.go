package billing

// Webhook event vocabulary pushed by the gateway. Anything else is logged and
// acknowledged so the gateway does not retry indefinitely.
const (
	EventSubscriptionCharged   = "subscription.charged"
	EventSubscriptionFailed    = "subscription.failed"
	EventSubscriptionCancelled = "subscription.cancelled"
	EventSubscriptionActivated = "subscription.activated"
	EventSubscriptionCompleted = "subscription.completed"
	EventSubscriptionHalted    = "subscription.halted"
	EventInvoiceIssued         = "invoice.issued"
)

// GatewaySubscription is the provider shape used both for webhook payload
// entities and pull reconciliation responses. Timestamps are Unix seconds and
// must pass through the timestamp reconciler before touching local state.
type GatewaySubscription struct {
	ID           string `json:"id"`
	PlanID       string `json:"plan_id"`
	CustomerID   string `json:"customer_id"`
	Status       string `json:"status"`
	CurrentStart int64  `json:"current_start"`
	CurrentEnd   int64  `json:"current_end"`
	ChargeAt     int64  `json:"charge_at"`
	StartAt      int64  `json:"start_at"`
	EndAt        int64  `json:"end_at"`
	EndedAt      int64  `json:"ended_at"`
	PaidCount    int    `json:"paid_count"`
	TotalCount   int    `json:"total_count"`
	AuthAttempts int    `json:"auth_attempts"`
	Quantity     int    `json:"quantity"`
}

// GatewayPayment is the payment entity attached to charged webhooks.
type GatewayPayment struct {
	ID        string `json:"id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

// WebhookEnvelope is the outer webhook body.
type WebhookEnvelope struct {
	Event     string `json:"event" validate:"required"`
	CreatedAt int64  `json:"created_at"`
	Payload   struct {
		Subscription struct {
			Entity GatewaySubscription `json:"entity"`
		} `json:"subscription"`
		Payment struct {
			Entity GatewayPayment `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}
