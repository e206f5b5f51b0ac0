package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	logger := w.logger.With(slog.String("worker_name", workerName))
	logger.Debug("Worker goroutine started")

	for {
		select {
		case <-w.stopChan:
			logger.Info("Worker goroutine stopping - stopChan closed")
			return

		case <-ctx.Done():
			logger.Info("Worker goroutine stopping - context canceled")
			return

		case msg, ok := <-w.jobsChan:
			if !ok {
				logger.Info("Worker goroutine stopping - jobsChan closed")
				return
			}
			w.handle(ctx, logger, msg)
		}
	}
}

// handle processes one message and settles its delivery
func (w *Worker) handle(ctx context.Context, logger *slog.Logger, msg *JobMessage) {
	delivery := msg.Delivery
	logger = logger.With(slog.Uint64("delivery_tag", delivery.DeliveryTag))

	err := w.processJob(ctx, msg)
	if err == nil {
		if ackErr := delivery.Ack(false); ackErr != nil {
			logger.Error("Failed to ACK message", slog.String("error", ackErr.Error()))
		}
		return
	}

	if !w.shouldRequeueJob(err, delivery.Redelivered) {
		var retryable *RetryableError
		if errors.As(err, &retryable) {
			// second transient failure: park it on the dead letter exchange, if any
			logger.Error("Job failed again after redelivery", slog.String("error", err.Error()))
			if nackErr := delivery.Nack(false, false); nackErr != nil {
				logger.Error("Failed to NACK message", slog.String("error", nackErr.Error()))
			}
			return
		}

		logger.Warn("Job failed permanently", slog.String("error", err.Error()))
		if ackErr := delivery.Ack(false); ackErr != nil {
			logger.Error("Failed to ACK message", slog.String("error", ackErr.Error()))
		}
		return
	}

	logger.Warn("Job failed, requeueing once", slog.String("error", err.Error()))
	if nackErr := delivery.Nack(false, true); nackErr != nil {
		logger.Error("Failed to NACK message", slog.String("error", nackErr.Error()))
	}
}

// shouldRequeueJob requeues transient failures on their first delivery only
func (w *Worker) shouldRequeueJob(err error, redelivered bool) bool {
	if redelivered {
		return false
	}
	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}
