// Package dispatch fans domain events out to registered webhooks.
//
// Emitters hand an event to Dispatch and move on; deliveries run on a
// fixed worker pool behind a buffered queue, so a slow or failing
// receiver never blocks the HTTP path that produced the event. Every
// delivery is signed with the receiving webhook's own secret so
// receivers can authenticate the sender.
package dispatch

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/foyerhq/foyer/internal/model"
)

// deliveryTimeout caps one delivery attempt end to end. There are no
// retries; a receiver that cannot answer in time is recorded as a failure.
const deliveryTimeout = 10 * time.Second

// Header names carried on every delivery.
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderEvent     = "X-Webhook-Event"
	HeaderPayloadID = "X-Webhook-ID"
)

// Registry is the slice of the config store the dispatcher needs.
type Registry interface {
	ListWebhooks(ctx context.Context) ([]model.Webhook, error)
	RecordDeliveryOutcome(ctx context.Context, id string, success bool, at time.Time) error
}

// job is one pending delivery: a shared payload bound for one subscriber.
type job struct {
	webhook model.Webhook
	payload *model.WebhookPayload
	body    []byte
}

// Dispatcher owns the delivery queue and worker pool. Create one with New,
// call Start once, and Shutdown on the way out.
type Dispatcher struct {
	registry Registry
	logger   *slog.Logger
	client   *http.Client

	jobs    chan job
	workers int

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New creates a Dispatcher. workers is the pool size, queueSize the number
// of deliveries that may wait before new ones are dropped.
func New(registry Registry, workers, queueSize int, logger *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Dispatcher{
		registry: registry,
		logger:   logger,
		client:   &http.Client{Timeout: deliveryTimeout},
		jobs:     make(chan job, queueSize),
		workers:  workers,
	}
}

// Start launches the worker pool. It returns immediately.
func (d *Dispatcher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for j := range d.jobs {
				if ctx.Err() != nil {
					// Shutdown deadline passed; abandon what is left.
					continue
				}
				d.deliver(ctx, j)
			}
		}()
	}
}

// Shutdown stops intake and waits for queued deliveries to finish. When ctx
// expires first, in-flight requests are aborted and the rest of the queue
// is abandoned.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()

	if d.cancel == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

// Dispatch builds one payload for the event and queues a delivery to every
// enabled webhook subscribed to it. All recipients share the same payload,
// so they see identical id, timestamp, and body bytes. The call never
// blocks on delivery; when the queue is full the delivery is dropped with
// a warning instead of stalling the emitter.
func (d *Dispatcher) Dispatch(ctx context.Context, event string, data map[string]interface{}) {
	hooks, err := d.registry.ListWebhooks(ctx)
	if err != nil {
		d.logger.Error("listing webhooks for dispatch", "event", event, "error", err)
		return
	}

	payload := NewPayload(event, data)
	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.Error("encoding webhook payload", "event", event, "error", err)
		return
	}

	for _, w := range hooks {
		if !w.Enabled || !w.SubscribesTo(event) {
			continue
		}
		d.enqueue(job{webhook: w, payload: payload, body: body})
	}
}

func (d *Dispatcher) enqueue(j job) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.logger.Warn("dispatcher stopped; dropping delivery",
			"webhook_id", j.webhook.ID, "event", j.payload.Type)
		return
	}
	select {
	case d.jobs <- j:
	default:
		d.logger.Warn("dispatch queue full; dropping delivery",
			"webhook_id", j.webhook.ID, "event", j.payload.Type)
	}
}

// deliver runs one queued delivery and records its outcome.
func (d *Dispatcher) deliver(ctx context.Context, j job) {
	res := Deliver(ctx, d.client, &j.webhook, j.payload, j.body)
	d.record(j.webhook.ID, j.payload.Type, res)
}

// TestDelivery synchronously sends a synthetic payload to one webhook and
// returns the outcome to the caller. It signs and posts exactly like a real
// dispatch and updates the webhook's delivery accounting the same way, so a
// test send exercises the full receiving path.
func (d *Dispatcher) TestDelivery(ctx context.Context, w *model.Webhook) model.DeliveryResult {
	payload := NewPayload(model.EventTest, map[string]interface{}{
		"webhook_id": w.ID,
		"message":    "test delivery",
	})
	body, err := json.Marshal(payload)
	if err != nil {
		return model.DeliveryResult{Success: false, Error: err.Error()}
	}

	res := Deliver(ctx, d.client, w, payload, body)
	d.record(w.ID, payload.Type, res)
	return res
}

// record persists the outcome of one attempt. Recording uses a fresh
// context so a shutdown that aborted the HTTP call cannot also lose the
// accounting write.
func (d *Dispatcher) record(webhookID, event string, res model.DeliveryResult) {
	if err := d.registry.RecordDeliveryOutcome(context.Background(), webhookID, res.Success, time.Now().UTC()); err != nil {
		d.logger.Warn("recording delivery outcome",
			"webhook_id", webhookID, "event", event, "error", err)
	}
	if !res.Success {
		d.logger.Warn("webhook delivery failed",
			"webhook_id", webhookID, "event", event,
			"status", res.StatusCode, "error", res.Error)
	}
}

// NewPayload builds the body shared by every subscriber of one event
// emission. Payload ids are UUIDv7 so receivers can order them by time.
func NewPayload(event string, data map[string]interface{}) *model.WebhookPayload {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return &model.WebhookPayload{
		ID:        id.String(),
		Type:      event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}
}

// Deliver signs body with the webhook's secret and posts it. body must be
// the exact serialized payload: the signature is computed over those bytes,
// and receivers verify it against the raw body they read. Any 2xx status
// counts as success; everything else, including transport errors and the
// delivery timeout, is a failure.
func Deliver(ctx context.Context, client *http.Client, w *model.Webhook, payload *model.WebhookPayload, body []byte) model.DeliveryResult {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return model.DeliveryResult{
			Success:   false,
			LatencyMs: latencyMs(start),
			Error:     err.Error(),
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, Sign(w.Secret, body))
	req.Header.Set(HeaderEvent, payload.Type)
	req.Header.Set(HeaderPayloadID, payload.ID)

	resp, err := client.Do(req)
	if err != nil {
		return model.DeliveryResult{
			Success:   false,
			LatencyMs: latencyMs(start),
			Error:     err.Error(),
		}
	}
	defer resp.Body.Close()

	return model.DeliveryResult{
		Success:    resp.StatusCode >= 200 && resp.StatusCode < 300,
		StatusCode: resp.StatusCode,
		LatencyMs:  latencyMs(start),
	}
}

// Sign computes the hex-encoded HMAC-SHA256 of body keyed by secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func latencyMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
