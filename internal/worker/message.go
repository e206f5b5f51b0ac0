package worker

import (
	"errors"

	"github.com/cuongbtq/audio-pipeline/internal/pipeline"
	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	// ErrInvalidMessage is returned when a trigger body is not valid JSON or names no survey response
	ErrInvalidMessage = errors.New("invalid trigger message")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// JobMessage is a decoded generation trigger and the delivery it came from
type JobMessage struct {
	Request  pipeline.Request
	Delivery amqp.Delivery
}
