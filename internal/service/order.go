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

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// StatusChange carries any combination of the three status dimensions. Nil
// fields are left as they are.
type StatusChange struct {
	OrderID        string
	OrderStatus    *model.OrderStatus
	PaymentStatus  *model.PaymentStatus
	ShipmentStatus *model.ShipmentStatus
	Actor          string
	Note           string
}

type OrderDetail struct {
	Order    *model.Order                `json:"order"`
	History  []*model.OrderStatusHistory `json:"history"`
	Attempts []*model.PaymentAttempt     `json:"payment_attempts"`
}

type OrderService interface {
	Get(ctx context.Context, userID uint64, orderID string) (*OrderDetail, error)
	GetGroup(ctx context.Context, userID uint64, orderGroupID string) ([]*model.Order, error)
	List(ctx context.Context, userID uint64, limit int) ([]*model.Order, error)
	UpdateStatus(ctx context.Context, change StatusChange) (*model.Order, error)
	RefundOrder(ctx context.Context, orderID, actor, note string) (*model.Order, error)
}

type orderServiceImpl struct {
	db                 *gorm.DB
	orderRepo          repository.OrderRepository
	paymentAttemptRepo repository.PaymentAttemptRepository
	ledgerRepo         repository.LedgerRepository
	ledger             LedgerService
	publisher          event.Publisher
}

func NewOrderService(
	db *gorm.DB,
	orderRepo repository.OrderRepository,
	paymentAttemptRepo repository.PaymentAttemptRepository,
	ledgerRepo repository.LedgerRepository,
	ledger LedgerService,
	publisher event.Publisher,
) OrderService {
	return &orderServiceImpl{
		db:                 db,
		orderRepo:          orderRepo,
		paymentAttemptRepo: paymentAttemptRepo,
		ledgerRepo:         ledgerRepo,
		ledger:             ledger,
		publisher:          publisher,
	}
}

func (s *orderServiceImpl) Get(ctx context.Context, userID uint64, orderID string) (*OrderDetail, error) {
	order, err := s.orderRepo.FindByOrderID(ctx, nil, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Newf(apperr.CodeNotFound, "order %s not found", orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	if !visibleTo(order, userID) {
		return nil, apperr.Newf(apperr.CodeNotFound, "order %s not found", orderID)
	}

	history, err := s.orderRepo.GetHistory(ctx, nil, order.ID)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	attempts, err := s.paymentAttemptRepo.ListByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list payment attempts: %w", err)
	}

	return &OrderDetail{Order: order, History: history, Attempts: attempts}, nil
}

func (s *orderServiceImpl) GetGroup(ctx context.Context, userID uint64, orderGroupID string) ([]*model.Order, error) {
	orders, err := s.orderRepo.FindByGroupID(ctx, nil, orderGroupID)
	if err != nil {
		return nil, fmt.Errorf("find orders: %w", err)
	}
	if len(orders) == 0 || orders[0].UserID != userID {
		return nil, apperr.Newf(apperr.CodeNotFound, "order group %s not found", orderGroupID)
	}
	return orders, nil
}

func (s *orderServiceImpl) List(ctx context.Context, userID uint64, limit int) ([]*model.Order, error) {
	orders, err := s.orderRepo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// UpdateStatus applies a combined change under the order row lock. Paid and
// refunded are reached only through payment verification and RefundOrder,
// which also move ledger funds.
func (s *orderServiceImpl) UpdateStatus(ctx context.Context, change StatusChange) (*model.Order, error) {
	if change.OrderStatus == nil && change.PaymentStatus == nil && change.ShipmentStatus == nil {
		return nil, apperr.New(apperr.CodeValidation, "no status change requested")
	}
	if change.PaymentStatus != nil {
		switch *change.PaymentStatus {
		case model.PaymentStatusPaid, model.PaymentStatusRefunded:
			return nil, apperr.Newf(apperr.CodeValidation, "payment status %s cannot be set directly", *change.PaymentStatus)
		}
	}

	var updated *model.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.lockOrder(ctx, tx, change.OrderID)
		if err != nil {
			return err
		}

		fields := map[string]interface{}{}
		if next := change.OrderStatus; next != nil && *next != order.OrderStatus {
			if !order.OrderStatus.CanTransitionTo(*next) {
				return apperr.Newf(apperr.CodeInvalidTransition, "order status %s -> %s", order.OrderStatus, *next)
			}
			order.OrderStatus = *next
			fields["order_status"] = *next
		}
		if next := change.ShipmentStatus; next != nil && *next != order.ShipmentStatus {
			if !order.ShipmentStatus.CanTransitionTo(*next) {
				return apperr.Newf(apperr.CodeInvalidTransition, "shipment status %s -> %s", order.ShipmentStatus, *next)
			}
			order.ShipmentStatus = *next
			fields["shipment_status"] = *next
		}
		if next := change.PaymentStatus; next != nil && (order.PaymentStatus == nil || *next != *order.PaymentStatus) {
			if !model.CanTransitionPayment(order.PaymentStatus, *next) {
				return apperr.Newf(apperr.CodeInvalidTransition, "payment status %s -> %s", paymentLabel(order.PaymentStatus), *next)
			}
			order.PaymentStatus = model.PaymentStatusPtr(*next)
			fields["payment_status"] = order.PaymentStatus
		}
		if len(fields) == 0 {
			updated = order
			return nil
		}

		if err := s.orderRepo.Update(ctx, tx, order.ID, fields); err != nil {
			return fmt.Errorf("update order %s: %w", order.OrderID, err)
		}
		if err := s.appendHistory(ctx, tx, order, change.Actor, change.Note); err != nil {
			return err
		}

		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.L.Info("order status updated",
		zap.String("order_id", updated.OrderID),
		zap.String("order_status", string(updated.OrderStatus)),
		zap.String("shipment_status", string(updated.ShipmentStatus)),
		zap.String("actor", change.Actor),
	)
	event.PublishAll(ctx, s.publisher, event.New(event.OrderStatusChanged, OrderEventPayload(updated)))
	return updated, nil
}

// RefundOrder marks a paid order refunded and reverses the vendor earnings
// still held for it. Earnings that already matured are left to a manual
// adjustment.
func (s *orderServiceImpl) RefundOrder(ctx context.Context, orderID, actor, note string) (*model.Order, error) {
	var refunded *model.Order
	reversed := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !model.CanTransitionPayment(order.PaymentStatus, model.PaymentStatusRefunded) {
			return apperr.Newf(apperr.CodeInvalidTransition, "payment status %s -> %s", paymentLabel(order.PaymentStatus), model.PaymentStatusRefunded)
		}

		order.PaymentStatus = model.PaymentStatusPtr(model.PaymentStatusRefunded)
		if err := s.orderRepo.Update(ctx, tx, order.ID, map[string]interface{}{"payment_status": order.PaymentStatus}); err != nil {
			return fmt.Errorf("update order %s: %w", order.OrderID, err)
		}
		if err := s.appendHistory(ctx, tx, order, actor, note); err != nil {
			return err
		}

		entries, err := s.ledgerRepo.ListLockedByOrder(ctx, tx, order.OrderID)
		if err != nil {
			return fmt.Errorf("list locked entries: %w", err)
		}
		for _, entry := range entries {
			if _, err := s.ledger.ReverseLockedTx(ctx, tx, entry, "refund of order "+order.OrderID); err != nil {
				return fmt.Errorf("reverse entry %d: %w", entry.ID, err)
			}
			reversed++
		}

		refunded = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.L.Info("order refunded", zap.String("order_id", orderID), zap.Int("reversed_entries", reversed))
	event.PublishAll(ctx, s.publisher, event.New(event.OrderStatusChanged, OrderEventPayload(refunded)))
	return refunded, nil
}

func (s *orderServiceImpl) lockOrder(ctx context.Context, tx *gorm.DB, orderID string) (*model.Order, error) {
	order, err := s.orderRepo.FindByOrderIDForUpdate(ctx, tx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Newf(apperr.CodeNotFound, "order %s not found", orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("lock order %s: %w", orderID, err)
	}
	return order, nil
}

func (s *orderServiceImpl) appendHistory(ctx context.Context, tx *gorm.DB, order *model.Order, actor, note string) error {
	if actor == "" {
		actor = "system"
	}
	err := s.orderRepo.AppendHistory(ctx, tx, &model.OrderStatusHistory{
		OrderID:        order.ID,
		OrderStatus:    order.OrderStatus,
		PaymentStatus:  order.PaymentStatus,
		ShipmentStatus: order.ShipmentStatus,
		Actor:          actor,
		Note:           note,
		CreatedAt:      time.Now(),
	})
	if err != nil {
		return fmt.Errorf("append history for %s: %w", order.OrderID, err)
	}
	return nil
}

func visibleTo(order *model.Order, userID uint64) bool {
	if order.UserID == userID {
		return true
	}
	return order.VendorID != nil && *order.VendorID == userID
}

func paymentLabel(status *model.PaymentStatus) string {
	if status == nil {
		return "none"
	}
	return string(*status)
}
