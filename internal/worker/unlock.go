package worker

import (
	"context"
	"time"

	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/service"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/pkg/log"

	"go.uber.org/zap"
)

// UnlockWorker periodically matures held vendor earnings.
type UnlockWorker struct {
	unlockService service.UnlockService
	interval      time.Duration
}

func NewUnlockWorker(unlockService service.UnlockService, interval time.Duration) *UnlockWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &UnlockWorker{
		unlockService: unlockService,
		interval:      interval,
	}
}

// Run processes one batch immediately and then one per tick until ctx is done.
func (w *UnlockWorker) Run(ctx context.Context) error {
	log.L.Info("unlock worker started", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			log.L.Info("unlock worker stopped")
			return nil
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

func (w *UnlockWorker) RunOnce(ctx context.Context) *service.UnlockResult {
	result, err := w.unlockService.ProcessUnlocks(ctx)
	if err != nil {
		log.L.Error("process unlocks", zap.Error(err))
		return nil
	}
	if result.UnlockedCount > 0 || result.Failed > 0 {
		log.L.Info("unlock batch processed",
			zap.Int("unlocked", result.UnlockedCount),
			zap.Int("failed", result.Failed),
			zap.String("amount", result.TotalAmount.StringFixed(2)),
		)
	}
	return result
}
