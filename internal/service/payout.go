package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/apperr"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/event"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/model"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/repository"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/pkg/log"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type PayoutService interface {
	Request(ctx context.Context, userID uint64, amount decimal.Decimal, note string) (*model.PayoutRequest, error)
	Approve(ctx context.Context, payoutID uint64) (*model.PayoutRequest, error)
	MarkPaid(ctx context.Context, payoutID uint64, reference string) (*model.PayoutRequest, error)
	Reject(ctx context.Context, payoutID uint64, reason string) (*model.PayoutRequest, error)
	List(ctx context.Context, userID uint64) ([]*model.PayoutRequest, error)
}

type payoutServiceImpl struct {
	db         *gorm.DB
	payoutRepo repository.PayoutRepository
	ledger     LedgerService
	publisher  event.Publisher
}

func NewPayoutService(db *gorm.DB, payoutRepo repository.PayoutRepository, ledger LedgerService, publisher event.Publisher) PayoutService {
	return &payoutServiceImpl{
		db:         db,
		payoutRepo: payoutRepo,
		ledger:     ledger,
		publisher:  publisher,
	}
}

// Request takes the amount out of the available balance straight away, so
// the same funds cannot be requested twice.
func (s *payoutServiceImpl) Request(ctx context.Context, userID uint64, amount decimal.Decimal, note string) (*model.PayoutRequest, error) {
	if !amount.IsPositive() {
		return nil, apperr.New(apperr.CodeValidation, "payout amount must be positive")
	}

	payout := &model.PayoutRequest{
		UserID: userID,
		Amount: amount.Round(2),
		Status: model.PayoutStatusPending,
		Note:   note,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.payoutRepo.Create(ctx, tx, payout); err != nil {
			return fmt.Errorf("create payout: %w", err)
		}

		debitID, err := s.ledger.DebitTx(ctx, tx, DebitRequest{
			UserID:   userID,
			Amount:   payout.Amount,
			Type:     model.TransactionTypePayout,
			PayoutID: &payout.ID,
			Note:     "payout request",
		})
		if err != nil {
			return err
		}

		payout.DebitTransactionID = &debitID
		return s.payoutRepo.Update(ctx, tx, payout.ID, map[string]interface{}{"debit_transaction_id": debitID})
	})
	if err != nil {
		return nil, err
	}

	log.L.Info("payout requested", zap.Uint64("payout_id", payout.ID), zap.Uint64("user_id", userID))
	event.PublishAll(ctx, s.publisher, event.New(event.PayoutRequested, map[string]interface{}{
		"payout_id": payout.ID,
		"user_id":   userID,
		"amount":    payout.Amount.StringFixed(2),
	}))
	return payout, nil
}

func (s *payoutServiceImpl) Approve(ctx context.Context, payoutID uint64) (*model.PayoutRequest, error) {
	return s.advance(ctx, payoutID, model.PayoutStatusApproved, func(p *model.PayoutRequest, now time.Time, fields map[string]interface{}) {
		p.ApprovedAt = &now
		fields["approved_at"] = now
	})
}

func (s *payoutServiceImpl) MarkPaid(ctx context.Context, payoutID uint64, reference string) (*model.PayoutRequest, error) {
	return s.advance(ctx, payoutID, model.PayoutStatusPaid, func(p *model.PayoutRequest, now time.Time, fields map[string]interface{}) {
		p.PaidAt = &now
		p.Reference = reference
		fields["paid_at"] = now
		fields["reference"] = reference
	})
}

func (s *payoutServiceImpl) Reject(ctx context.Context, payoutID uint64, reason string) (*model.PayoutRequest, error) {
	var payout *model.PayoutRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		payout, err = s.lock(ctx, tx, payoutID)
		if err != nil {
			return err
		}
		if !payout.Status.CanTransitionTo(model.PayoutStatusRejected) {
			return apperr.Newf(apperr.CodeInvalidTransition, "payout %s -> %s", payout.Status, model.PayoutStatusRejected)
		}

		_, err = s.ledger.CreditTx(ctx, tx, CreditRequest{
			UserID:      payout.UserID,
			Amount:      payout.Amount,
			Type:        model.TransactionTypeRefund,
			PayoutID:    &payout.ID,
			ReferenceID: payout.DebitTransactionID,
			Note:        "payout rejected",
		})
		if err != nil {
			return fmt.Errorf("return payout funds: %w", err)
		}

		now := time.Now()
		payout.Status = model.PayoutStatusRejected
		payout.RejectedAt = &now
		payout.Note = reason
		return s.payoutRepo.Update(ctx, tx, payout.ID, map[string]interface{}{
			"status":      payout.Status,
			"rejected_at": now,
			"note":        reason,
		})
	})
	if err != nil {
		return nil, err
	}
	return payout, nil
}

func (s *payoutServiceImpl) List(ctx context.Context, userID uint64) ([]*model.PayoutRequest, error) {
	payouts, err := s.payoutRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	return payouts, nil
}

func (s *payoutServiceImpl) advance(
	ctx context.Context,
	payoutID uint64,
	next model.PayoutStatus,
	apply func(p *model.PayoutRequest, now time.Time, fields map[string]interface{}),
) (*model.PayoutRequest, error) {
	var payout *model.PayoutRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		payout, err = s.lock(ctx, tx, payoutID)
		if err != nil {
			return err
		}
		if !payout.Status.CanTransitionTo(next) {
			return apperr.Newf(apperr.CodeInvalidTransition, "payout %s -> %s", payout.Status, next)
		}

		fields := map[string]interface{}{"status": next}
		payout.Status = next
		apply(payout, time.Now(), fields)
		return s.payoutRepo.Update(ctx, tx, payout.ID, fields)
	})
	if err != nil {
		return nil, err
	}
	return payout, nil
}

func (s *payoutServiceImpl) lock(ctx context.Context, tx *gorm.DB, payoutID uint64) (*model.PayoutRequest, error) {
	payout, err := s.payoutRepo.FindForUpdate(ctx, tx, payoutID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Newf(apperr.CodeNotFound, "payout %d not found", payoutID)
	}
	if err != nil {
		return nil, fmt.Errorf("lock payout %d: %w", payoutID, err)
	}
	return payout, nil
}
