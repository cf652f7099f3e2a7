package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/voxline/livechat-service/internal/config"
	"github.com/voxline/livechat-service/internal/domain"
	"github.com/voxline/livechat-service/internal/observability"
	"github.com/voxline/livechat-service/internal/presence"
	"github.com/voxline/livechat-service/internal/repository"
	"github.com/voxline/livechat-service/internal/service"
)

// PresenceWorker periodically sweeps ONLINE/BUSY operators whose
// heartbeat key has expired and forces them OFFLINE through the
// coordinator, which releases their load and closes active sessions.
type PresenceWorker struct {
	operators repository.OperatorRepository
	tracker   *presence.Tracker
	chat      *service.ChatService
	metrics   *observability.Metrics
	logger    *zap.Logger
	interval  time.Duration

	stop chan struct{}
	done chan struct{}
}

// NewPresenceWorker builds the worker. Returns nil when sweeping is disabled.
func NewPresenceWorker(
	cfg config.PresenceConfig,
	operators repository.OperatorRepository,
	tracker *presence.Tracker,
	chat *service.ChatService,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *PresenceWorker {
	if !cfg.Enabled || tracker == nil {
		return nil
	}
	return &PresenceWorker{
		operators: operators,
		tracker:   tracker,
		chat:      chat,
		metrics:   metrics,
		logger:    logger,
		interval:  cfg.SweepInterval(),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (w *PresenceWorker) Start() {
	go w.run()
}

// Stop signals the loop and waits for it to exit.
func (w *PresenceWorker) Stop() {
	close(w.stop)
	<-w.done
}

func (w *PresenceWorker) run() {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.sweep(context.Background())
		}
	}
}

func (w *PresenceWorker) sweep(ctx context.Context) {
	operators, err := w.operators.ListByStatuses(ctx, []domain.OperatorStatus{
		domain.OperatorStatusOnline,
		domain.OperatorStatusBusy,
	})
	if err != nil {
		w.logger.Error("presence sweep: list operators failed", zap.Error(err))
		return
	}

	for _, op := range operators {
		alive, err := w.tracker.Alive(ctx, op.ID)
		if err != nil {
			w.logger.Warn("presence sweep: heartbeat check failed",
				zap.String("operator_id", op.ID), zap.Error(err))
			continue
		}
		if alive {
			continue
		}

		w.logger.Info("presence sweep: heartbeat expired, forcing offline",
			zap.String("operator_id", op.ID))
		if err := w.chat.SetOperatorStatus(ctx, op.ID, domain.OperatorStatusOffline); err != nil {
			w.logger.Error("presence sweep: force offline failed",
				zap.String("operator_id", op.ID), zap.Error(err))
			continue
		}
		w.metrics.RecordPresenceExpiry()
	}
}
