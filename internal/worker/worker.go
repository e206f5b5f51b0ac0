package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cuongbtq/audio-pipeline/internal/pipeline"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Generator runs the audio pipeline for one trigger
type Generator interface {
	Generate(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Consumer opens a delivery stream on the trigger queue
type Consumer interface {
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// Config holds worker configuration
type Config struct {
	Logger      *slog.Logger
	Consumer    Consumer
	Generator   Generator
	WorkerID    string
	QueueName   string
	Concurrency int
}

// Worker consumes generation triggers and runs them on a fixed pool
type Worker struct {
	logger    *slog.Logger
	consumer  Consumer
	generator Generator
	workerID  string
	queueName string

	concurrency int
	jobsChan    chan *JobMessage
	wg          sync.WaitGroup
	stopChan    chan struct{}
	stopOnce    sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = "audio-worker"
	}

	return &Worker{
		logger:      cfg.Logger,
		consumer:    cfg.Consumer,
		generator:   cfg.Generator,
		workerID:    workerID,
		queueName:   cfg.QueueName,
		concurrency: concurrency,
		jobsChan:    make(chan *JobMessage, concurrency),
		stopChan:    make(chan struct{}),
	}
}

// Start consumes the trigger queue until ctx is canceled or the delivery
// channel closes. In-flight jobs are finished by Stop.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)
	w.startMessageDispatcher(ctx, deliveries)

	w.logger.Info("Worker dispatcher exited", slog.String("worker_id", w.workerID))
	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
