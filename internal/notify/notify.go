package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

const (
	EventCompleted = "completed"
	EventFailed    = "failed"
)

// Event describes the outcome of one pipeline run
type Event struct {
	Type             string    `json:"type"`
	SurveyResponseID string    `json:"survey_response_id"`
	Email            string    `json:"email,omitempty"`
	ContactID        string    `json:"ghl_contact_id,omitempty"`
	AudioURL         string    `json:"audio_url,omitempty"`
	Cached           bool      `json:"cached"`
	Stage            string    `json:"stage,omitempty"`
	Error            string    `json:"error,omitempty"`
	CRMError         string    `json:"crm_error,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// Notifier accepts events without blocking the caller.
// Delivery is best effort and failures never reach the caller.
type Notifier interface {
	Notify(event Event)
}

// Publisher is the transport an Async notifier delivers through
type Publisher interface {
	PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// Nop discards every event
type Nop struct{}

func (Nop) Notify(Event) {}

// AsyncConfig configures an Async notifier
type AsyncConfig struct {
	RoutingKeyPrefix string
	BufferSize       int
	PublishTimeout   time.Duration
}

// Async buffers events and publishes them from a single goroutine.
// Events are dropped when the buffer is full.
type Async struct {
	publisher Publisher
	config    AsyncConfig
	logger    *slog.Logger

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewAsync creates a new Async notifier and starts its delivery loop
func NewAsync(publisher Publisher, config AsyncConfig, logger *slog.Logger) *Async {
	if config.BufferSize <= 0 {
		config.BufferSize = 100
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 5 * time.Second
	}
	if config.RoutingKeyPrefix == "" {
		config.RoutingKeyPrefix = "audio.job"
	}

	a := &Async{
		publisher: publisher,
		config:    config,
		logger:    logger,
		events:    make(chan Event, config.BufferSize),
		done:      make(chan struct{}),
	}
	go a.run()
	return a
}

// Notify enqueues event or drops it when the buffer is full
func (a *Async) Notify(event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}

	select {
	case a.events <- event:
	default:
		a.logger.Warn("Notification buffer full, dropping event",
			slog.String("type", event.Type),
			slog.String("survey_response_id", event.SurveyResponseID),
		)
	}
}

// Close stops accepting events and waits for buffered ones to be
// delivered or for ctx to end.
func (a *Async) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.events)
		a.mu.Unlock()
	})

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Async) run() {
	defer close(a.done)
	for event := range a.events {
		a.deliver(event)
	}
}

func (a *Async) deliver(event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		a.logger.Error("Failed to encode notification", slog.Any("error", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.config.PublishTimeout)
	defer cancel()

	routingKey := a.config.RoutingKeyPrefix + "." + event.Type
	if err := a.publisher.PublishWithRetry(ctx, routingKey, body, "application/json"); err != nil {
		a.logger.Warn("Failed to deliver notification",
			slog.String("routing_key", routingKey),
			slog.String("survey_response_id", event.SurveyResponseID),
			slog.Any("error", err),
		)
	}
}
