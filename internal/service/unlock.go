package service

import (
	"context"
	"fmt"
	"time"

	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/metrics"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/model"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/repository"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/pkg/log"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type UnlockResult struct {
	UnlockedCount int             `json:"unlocked_count"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Failed        int             `json:"failed"`
}

type UnlockService interface {
	ProcessUnlocks(ctx context.Context) (*UnlockResult, error)
}

type unlockServiceImpl struct {
	db         *gorm.DB
	ledgerRepo repository.LedgerRepository
	ledger     LedgerService
	settings   SettingsService
}

func NewUnlockService(db *gorm.DB, ledgerRepo repository.LedgerRepository, ledger LedgerService, settings SettingsService) UnlockService {
	return &unlockServiceImpl{
		db:         db,
		ledgerRepo: ledgerRepo,
		ledger:     ledger,
		settings:   settings,
	}
}

// ProcessUnlocks matures one batch of locked entries whose hold period has
// passed. Each entry gets its own transaction; a failing entry is logged and
// left locked for the next run.
func (s *unlockServiceImpl) ProcessUnlocks(ctx context.Context) (*UnlockResult, error) {
	result := &UnlockResult{TotalAmount: decimal.Zero}

	ids, err := s.ledgerRepo.ListMaturedLockedIDs(ctx, time.Now(), s.settings.UnlockBatchSize(ctx))
	if err != nil {
		return nil, fmt.Errorf("list matured entries: %w", err)
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}

		var unlocked *model.Transaction
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			unlocked, err = s.ledger.UnlockTx(ctx, tx, id)
			return err
		})
		if err != nil {
			result.Failed++
			metrics.RecordOperation("unlock", false)
			log.L.Error("unlock transaction", zap.Uint64("transaction_id", id), zap.Error(err))
			continue
		}
		if unlocked == nil {
			continue
		}

		result.UnlockedCount++
		result.TotalAmount = result.TotalAmount.Add(unlocked.Amount)
		metrics.RecordOperation("unlock", true)
		metrics.AddUnlocked(unlocked.Amount.InexactFloat64())
	}

	if result.UnlockedCount > 0 || result.Failed > 0 {
		log.L.Info("processed unlocks",
			zap.Int("unlocked", result.UnlockedCount),
			zap.String("amount", result.TotalAmount.StringFixed(2)),
			zap.Int("failed", result.Failed),
		)
	}
	return result, nil
}
