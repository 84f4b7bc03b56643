package model

import "time"

// Domain event types that webhook subscriptions can select. EventTest is
// reserved for synthetic test deliveries and cannot be subscribed to.
const (
	EventRoomCreated       = "room.created"
	EventRoomDeleted       = "room.deleted"
	EventParticipantJoined = "participant.joined"
	EventParticipantLeft   = "participant.left"
	EventRecordingStarted  = "recording.started"
	EventRecordingStopped  = "recording.stopped"
	EventTest              = "test"
)

// AllEvents lists every subscribable event type, in a stable order.
var AllEvents = []string{
	EventRoomCreated,
	EventRoomDeleted,
	EventParticipantJoined,
	EventParticipantLeft,
	EventRecordingStarted,
	EventRecordingStopped,
}

// ValidEvent reports whether s names a subscribable event type.
func ValidEvent(s string) bool {
	for _, e := range AllEvents {
		if e == s {
			return true
		}
	}
	return false
}

// FilterEvents drops unknown event types and duplicates from events,
// preserving the caller's order. The result may be empty; creation and
// update paths treat an empty result as an error.
func FilterEvents(events []string) []string {
	out := make([]string, 0, len(events))
	seen := make(map[string]bool, len(events))
	for _, e := range events {
		if ValidEvent(e) && !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}

// Webhook is an outbound subscription: a URL that receives signed POSTs for
// the event types it selects. The signing secret is stored because every
// delivery needs it, but it is never serialized; responses expose only the
// masked form.
type Webhook struct {
	ID              string     `json:"id" db:"id"`
	Name            string     `json:"name" db:"name"`
	URL             string     `json:"url" db:"url"`
	Events          []string   `json:"events" db:"-"`
	Enabled         bool       `json:"enabled" db:"enabled"`
	Secret          string     `json:"-" db:"secret"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty" db:"last_triggered_at"`
	FailureCount    int        `json:"failure_count" db:"failure_count"`
}

// SubscribesTo reports whether the webhook has selected the given event
// type. The enabled flag is checked separately by the dispatcher.
func (w *Webhook) SubscribesTo(event string) bool {
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}

// MaskedSecret returns the display form of the signing secret: the prefix
// and the last four characters, with the middle elided.
func (w *Webhook) MaskedSecret() string {
	const prefixLen = len("whsec_") + 4
	if len(w.Secret) <= prefixLen+4 {
		return w.Secret
	}
	return w.Secret[:prefixLen] + "..." + w.Secret[len(w.Secret)-4:]
}

// WebhookPayload is the body delivered to subscribers. One payload is built
// per domain event and shared by every subscriber of that event, so all
// recipients see the same id and timestamp.
type WebhookPayload struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Timestamp string                 `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// DeliveryResult reports the outcome of a single webhook delivery attempt.
// It is returned synchronously only by the test-delivery endpoint; real
// dispatches surface outcomes through FailureCount alone.
type DeliveryResult struct {
	Success    bool    `json:"success"`
	StatusCode int     `json:"status_code,omitempty"`
	LatencyMs  float64 `json:"latency_ms"`
	Error      string  `json:"error,omitempty"`
}
