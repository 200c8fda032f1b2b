package dispatcher

import (
	"context"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/projectpay-escrow-engine/internal/data/mongo"
	"github.com/projectpay-escrow-engine/internal/domain/shared"
)

// DeliveryService fans an escrow event out to its recipients
type DeliveryService interface {
	Deliver(ctx context.Context, event *shared.EscrowEvent) error
}

// WorkerPoolDeliveryService delivers notifications through a bounded ants
// worker pool and archives each delivered event. Per-recipient sink failures
// are logged but never propagated: the escrow engine's financial flow must
// not depend on notification channels.
type WorkerPoolDeliveryService struct {
	sink    NotificationSink
	archive mongo.ArchiveRepository
	pool    *ants.Pool
	logger  *slog.Logger
}

type WorkerPoolConfig struct {
	Size int
}

func NewWorkerPoolDeliveryService(
	sink NotificationSink,
	archive mongo.ArchiveRepository,
	config WorkerPoolConfig,
	logger *slog.Logger,
) (*WorkerPoolDeliveryService, error) {
	pool, err := ants.NewPool(config.Size)
	if err != nil {
		return nil, err
	}

	return &WorkerPoolDeliveryService{
		sink:    sink,
		archive: archive,
		pool:    pool,
		logger:  logger,
	}, nil
}

// Deliver archives the event and fans notifications out to every recipient
// in parallel. Returns an error only when archiving fails, so the consumer
// can retry the message; sink failures are swallowed after logging.
func (s *WorkerPoolDeliveryService) Deliver(ctx context.Context, event *shared.EscrowEvent) error {
	logger := s.logger
	if event.CorrelationID != "" {
		logger = s.logger.With("correlation_id", event.CorrelationID)
	}

	if err := s.archive.Record(ctx, event); err != nil {
		logger.Error("Failed to archive escrow event",
			"event_id", event.EventID.String(),
			"error", err,
		)
		return err
	}

	var wg sync.WaitGroup
	for _, recipient := range event.Recipients {
		recipient := recipient
		wg.Add(1)

		err := s.pool.Submit(func() {
			defer wg.Done()
			if notifyErr := s.sink.Notify(ctx, recipient, event); notifyErr != nil {
				logger.Warn("Notification delivery failed",
					"recipient", recipient.String(),
					"event_id", event.EventID.String(),
					"type", string(event.Type),
					"error", notifyErr,
				)
			}
		})
		if err != nil {
			wg.Done()
			logger.Error("Failed to submit notification to worker pool",
				"recipient", recipient.String(),
				"event_id", event.EventID.String(),
				"error", err,
			)
		}
	}
	wg.Wait()

	logger.Debug("Event delivered to recipients",
		"event_id", event.EventID.String(),
		"recipients", len(event.Recipients),
	)
	return nil
}

// Shutdown gracefully shuts down the worker pool.
func (s *WorkerPoolDeliveryService) Shutdown() {
	s.logger.Info("Shutting down notification worker pool", "running_workers", s.pool.Running())
	s.pool.Release()
}

// Running returns the number of running workers in the pool.
func (s *WorkerPoolDeliveryService) Running() int {
	return s.pool.Running()
}

// Capacity returns the capacity of the worker pool.
func (s *WorkerPoolDeliveryService) Capacity() int {
	return s.pool.Cap()
}
