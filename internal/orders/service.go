package orders

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/angelmondragon/guildmarket/internal/capabilities"
	"github.com/angelmondragon/guildmarket/internal/inventory"
	"github.com/angelmondragon/guildmarket/internal/notifications"
	"github.com/angelmondragon/guildmarket/pkg/db/models"
	"github.com/angelmondragon/guildmarket/pkg/enums"
	pkgerrors "github.com/angelmondragon/guildmarket/pkg/errors"
	"github.com/angelmondragon/guildmarket/pkg/logger"
	"github.com/angelmondragon/guildmarket/pkg/metrics"
	"github.com/angelmondragon/guildmarket/pkg/outbox"
	"github.com/angelmondragon/guildmarket/pkg/outbox/payloads"
)

const (
	MessageOrderNotFound = "order not found"
	MessageSelfOrder     = "you cannot order your own item"
	MessageNotAuthorized = "you are not part of this order"
	MessageNotPending    = "order is no longer pending"
	MessageRateLimited   = "too many orders, slow down"

	maxFreeTextLen = 200
)

// rejection reasons exported as metric labels
const (
	reasonValidation        = "validation"
	reasonRateLimited       = "rate_limited"
	reasonItemNotFound      = "item_not_found"
	reasonSelfOrder         = "self_order"
	reasonInsufficientStock = "insufficient_stock"
	reasonOrderNotFound     = "order_not_found"
	reasonNotAuthorized     = "not_authorized"
	reasonNotPending        = "not_pending"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Inventory is the part of the ledger an order touches inside its transaction.
type Inventory interface {
	FindWithSupplier(ctx context.Context, tx *gorm.DB, itemID int64) (*models.InventoryItemWithSupplier, error)
	Reserve(ctx context.Context, tx *gorm.DB, itemID int64, qty int) error
	Release(ctx context.Context, tx *gorm.DB, itemID int64, qty int) error
}

type SupplierChecker interface {
	RequireActive(ctx context.Context, tx *gorm.DB, userID string) (*models.Supplier, error)
}

type RateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

type CapabilityIssuer interface {
	Issue(ctx context.Context, grant capabilities.Capability) (string, error)
}

// Config holds the tunables read from the environment.
type Config struct {
	CustomerPageSize int
	SupplierPageSize int
	RateLimit        int
	RateWindow       time.Duration
}

// Deps wires the order service. Limiter and Metrics are optional.
type Deps struct {
	Repo         Repository
	Tx           txRunner
	Outbox       outbox.Emitter
	Inventory    Inventory
	Suppliers    SupplierChecker
	Notifier     notifications.Dispatcher
	Capabilities CapabilityIssuer
	Limiter      RateLimiter
	Metrics      *metrics.OrderMetrics
	Logger       *logger.Logger
	Config       Config
}

// Service runs the order lifecycle: pending → completed | cancelled.
type Service interface {
	Place(ctx context.Context, input PlaceInput) (*PlaceResult, error)
	Confirm(ctx context.Context, input TransitionInput) (*TransitionResult, error)
	Cancel(ctx context.Context, input TransitionInput) (*TransitionResult, error)
	ListForCustomer(ctx context.Context, customerID string) ([]models.Order, error)
	ListForSupplier(ctx context.Context, supplierID string) ([]models.Order, error)
	SupplierSummary(ctx context.Context, supplierID string) (*SupplierSummary, error)
	Get(ctx context.Context, orderID int64) (*models.Order, error)
}

type service struct {
	repo         Repository
	tx           txRunner
	outbox       outbox.Emitter
	inventory    Inventory
	suppliers    SupplierChecker
	notifier     notifications.Dispatcher
	capabilities CapabilityIssuer
	limiter      RateLimiter
	metrics      *metrics.OrderMetrics
	logg         *logger.Logger
	cfg          Config
	now          func() time.Time
}

// NewService validates deps and applies page size defaults.
func NewService(deps Deps) (Service, error) {
	switch {
	case deps.Repo == nil:
		return nil, fmt.Errorf("orders repository required")
	case deps.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case deps.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case deps.Inventory == nil:
		return nil, fmt.Errorf("inventory required")
	case deps.Suppliers == nil:
		return nil, fmt.Errorf("supplier checker required")
	case deps.Notifier == nil:
		return nil, fmt.Errorf("notification dispatcher required")
	case deps.Capabilities == nil:
		return nil, fmt.Errorf("capability issuer required")
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	cfg := deps.Config
	if cfg.CustomerPageSize <= 0 {
		cfg.CustomerPageSize = 10
	}
	if cfg.SupplierPageSize <= 0 {
		cfg.SupplierPageSize = 15
	}
	return &service{
		repo:         deps.Repo,
		tx:           deps.Tx,
		outbox:       deps.Outbox,
		inventory:    deps.Inventory,
		suppliers:    deps.Suppliers,
		notifier:     deps.Notifier,
		capabilities: deps.Capabilities,
		limiter:      deps.Limiter,
		metrics:      deps.Metrics,
		logg:         deps.Logger,
		cfg:          cfg,
		now:          time.Now,
	}, nil
}

func (s *service) Place(ctx context.Context, input PlaceInput) (*PlaceResult, error) {
	if err := normalizePlace(&input); err != nil {
		s.metrics.IncRejection(reasonValidation)
		return nil, err
	}
	if err := s.allowPlacement(ctx, input.CustomerID); err != nil {
		s.metrics.IncRejection(reasonRateLimited)
		return nil, err
	}

	var (
		order        models.Order
		supplierName string
		rejected     string
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		item, err := s.inventory.FindWithSupplier(ctx, tx, input.ItemID)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				rejected = reasonItemNotFound
			}
			return err
		}
		if !item.SupplierActive {
			rejected = reasonItemNotFound
			return pkgerrors.New(pkgerrors.CodeNotFound, inventory.MessageItemNotFound)
		}
		if item.SupplierID == input.CustomerID {
			rejected = reasonSelfOrder
			return pkgerrors.New(pkgerrors.CodeForbidden, MessageSelfOrder)
		}
		if input.Quantity > item.Quantity {
			rejected = reasonInsufficientStock
			return inventory.InsufficientStock(item.Quantity, input.Quantity)
		}
		total, ok := orderTotal(item.Price, input.Quantity)
		if !ok {
			rejected = reasonValidation
			return pkgerrors.New(pkgerrors.CodeValidation, "order total is too large")
		}

		itemID := item.ID
		order = models.Order{
			CustomerID:   input.CustomerID,
			SupplierID:   item.SupplierID,
			ItemID:       &itemID,
			ItemName:     item.ItemName,
			Quantity:     input.Quantity,
			TotalPrice:   total,
			Location:     input.Location,
			DeliveryTime: input.DeliveryTime,
			Status:       enums.OrderStatusPending,
		}
		if err := s.repo.WithTx(tx).Create(ctx, &order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if err := s.inventory.Reserve(ctx, tx, itemID, input.Quantity); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
				rejected = reasonInsufficientStock
			}
			return err
		}
		supplierName = item.SupplierName

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPlaced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   formatID(order.ID),
			Actor:         &outbox.ActorRef{UserID: input.CustomerID, Role: enums.ActorRoleCustomer},
			Data: payloads.OrderPlacedEvent{
				OrderID:      order.ID,
				CustomerID:   order.CustomerID,
				SupplierID:   order.SupplierID,
				ItemID:       itemID,
				ItemName:     order.ItemName,
				Quantity:     order.Quantity,
				TotalPrice:   order.TotalPrice,
				Location:     order.Location,
				DeliveryTime: order.DeliveryTime,
			},
		})
	})
	if err != nil {
		if rejected != "" {
			s.metrics.IncRejection(rejected)
		}
		return nil, err
	}

	s.metrics.IncTransition(string(enums.OrderStatusPending))
	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_id":    order.ID,
		"supplier_id": order.SupplierID,
		"customer_id": order.CustomerID,
	})
	s.logg.Info(ctx, "order placed")

	return &PlaceResult{
		Order:        order,
		SupplierID:   order.SupplierID,
		SupplierName: supplierName,
		Delivery:     s.notifyNewOrder(ctx, order),
	}, nil
}

func (s *service) Confirm(ctx context.Context, input TransitionInput) (*TransitionResult, error) {
	var (
		result   TransitionResult
		rejected string
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, role, reason, err := s.loadForTransition(ctx, repo, input)
		if err != nil {
			rejected = reason
			return err
		}
		if role != enums.ActorRoleSupplier {
			rejected = reasonNotAuthorized
			return pkgerrors.New(pkgerrors.CodeForbidden, MessageNotAuthorized)
		}
		if !current.Status.CanTransitionTo(enums.OrderStatusCompleted) {
			rejected = reasonNotPending
			return notPending()
		}

		completedAt := s.now().UTC()
		affected, err := repo.TransitionFromPending(ctx, current.ID, enums.OrderStatusCompleted, map[string]any{
			"completed_at": completedAt,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete order")
		}
		if affected == 0 {
			rejected = reasonNotPending
			return notPending()
		}
		updated, err := repo.FindByID(ctx, current.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		result = TransitionResult{Order: *updated, ActorRole: role, NotifiedID: updated.CustomerID}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCompleted,
			AggregateType: enums.AggregateOrder,
			AggregateID:   formatID(updated.ID),
			Actor:         &outbox.ActorRef{UserID: input.ActorID, Role: role},
			Data: payloads.OrderCompletedEvent{
				OrderID:     updated.ID,
				CustomerID:  updated.CustomerID,
				SupplierID:  updated.SupplierID,
				TotalPrice:  updated.TotalPrice,
				CompletedAt: completedAt,
			},
		})
	})
	if err != nil {
		if rejected != "" {
			s.metrics.IncRejection(rejected)
		}
		return nil, err
	}

	s.metrics.IncTransition(string(enums.OrderStatusCompleted))
	ctx = s.logg.WithField(ctx, "order_id", result.Order.ID)
	s.logg.Info(ctx, "order completed")

	result.Delivery = s.notifier.Notify(ctx, result.NotifiedID, notifications.CustomerOrderCompleted(result.Order))
	return &result, nil
}

func (s *service) Cancel(ctx context.Context, input TransitionInput) (*TransitionResult, error) {
	var (
		result   TransitionResult
		rejected string
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, role, reason, err := s.loadForTransition(ctx, repo, input)
		if err != nil {
			rejected = reason
			return err
		}
		if !current.Status.CanTransitionTo(enums.OrderStatusCancelled) {
			rejected = reasonNotPending
			return notPending()
		}

		cancelledAt := s.now().UTC()
		affected, err := repo.TransitionFromPending(ctx, current.ID, enums.OrderStatusCancelled, map[string]any{
			"cancelled_at": cancelledAt,
			"cancelled_by": role,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if affected == 0 {
			rejected = reasonNotPending
			return notPending()
		}
		updated, err := repo.FindByID(ctx, current.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}

		released := 0
		if updated.ItemID != nil {
			if err := s.inventory.Release(ctx, tx, *updated.ItemID, updated.Quantity); err != nil {
				return err
			}
			released = updated.Quantity
		}

		notified := updated.SupplierID
		if role == enums.ActorRoleSupplier {
			notified = updated.CustomerID
		}
		result = TransitionResult{Order: *updated, ActorRole: role, NotifiedID: notified}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   formatID(updated.ID),
			Actor:         &outbox.ActorRef{UserID: input.ActorID, Role: role},
			Data: payloads.OrderCancelledEvent{
				OrderID:          updated.ID,
				CustomerID:       updated.CustomerID,
				SupplierID:       updated.SupplierID,
				CancelledBy:      role,
				ReleasedQuantity: released,
				CancelledAt:      cancelledAt,
			},
		})
	})
	if err != nil {
		if rejected != "" {
			s.metrics.IncRejection(rejected)
		}
		return nil, err
	}

	s.metrics.IncTransition(string(enums.OrderStatusCancelled))
	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_id":     result.Order.ID,
		"cancelled_by": string(result.ActorRole),
	})
	s.logg.Info(ctx, "order cancelled")

	msg := notifications.SupplierOrderCancelledByCustomer(result.Order)
	if result.ActorRole == enums.ActorRoleSupplier {
		msg = notifications.CustomerOrderCancelledBySupplier(result.Order)
	}
	result.Delivery = s.notifier.Notify(ctx, result.NotifiedID, msg)
	return &result, nil
}

func (s *service) ListForCustomer(ctx context.Context, customerID string) ([]models.Order, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	orders, err := s.repo.ListByCustomer(ctx, customerID, s.cfg.CustomerPageSize)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return orders, nil
}

func (s *service) ListForSupplier(ctx context.Context, supplierID string) ([]models.Order, error) {
	if _, err := s.suppliers.RequireActive(ctx, nil, supplierID); err != nil {
		return nil, err
	}
	orders, err := s.repo.ListBySupplier(ctx, supplierID, s.cfg.SupplierPageSize)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return orders, nil
}

func (s *service) SupplierSummary(ctx context.Context, supplierID string) (*SupplierSummary, error) {
	summary, err := s.repo.SummarizeSupplier(ctx, supplierID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "summarize orders")
	}
	return summary, nil
}

func (s *service) Get(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderLookupError(err)
	}
	return order, nil
}

// loadForTransition fetches the order and works out how the actor relates
// to it. The returned reason is a metric label for rejections.
func (s *service) loadForTransition(ctx context.Context, repo Repository, input TransitionInput) (*models.Order, enums.ActorRole, string, error) {
	if input.OrderID <= 0 {
		return nil, "", reasonValidation, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	current, err := repo.FindByID(ctx, input.OrderID)
	if err != nil {
		mapped := mapOrderLookupError(err)
		if pkgerrors.IsCode(mapped, pkgerrors.CodeNotFound) {
			return nil, "", reasonOrderNotFound, mapped
		}
		return nil, "", "", mapped
	}

	var role enums.ActorRole
	switch input.ActorID {
	case current.SupplierID:
		role = enums.ActorRoleSupplier
	case current.CustomerID:
		role = enums.ActorRoleCustomer
	default:
		return nil, "", reasonNotAuthorized, pkgerrors.New(pkgerrors.CodeForbidden, MessageNotAuthorized)
	}
	if input.ExpectedRole != "" && input.ExpectedRole != role {
		return nil, "", reasonNotAuthorized, pkgerrors.New(pkgerrors.CodeForbidden, MessageNotAuthorized)
	}
	return current, role, "", nil
}

func (s *service) allowPlacement(ctx context.Context, customerID string) error {
	if s.limiter == nil || s.cfg.RateLimit <= 0 || s.cfg.RateWindow <= 0 {
		return nil
	}
	allowed, _, err := s.limiter.FixedWindowAllow(ctx, "orders:place:"+customerID, int64(s.cfg.RateLimit), s.cfg.RateWindow)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "order rate limiter unavailable, allowing request")
		return nil
	}
	if !allowed {
		return pkgerrors.New(pkgerrors.CodeRateLimit, MessageRateLimited)
	}
	return nil
}

// notifyNewOrder sends the supplier a DM with confirm and cancel controls.
// Both buttons share one single-use token.
func (s *service) notifyNewOrder(ctx context.Context, order models.Order) notifications.Result {
	var controls []notifications.Button
	token, err := s.capabilities.Issue(ctx, capabilities.Capability{
		OrderID: order.ID,
		Role:    enums.ActorRoleSupplier,
		ActorID: order.SupplierID,
	})
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "order controls unavailable, notifying without buttons")
	} else {
		controls = []notifications.Button{
			notifications.ConfirmButton(capabilities.CustomID(enums.OrderActionConfirm, token)),
			notifications.CancelButton(capabilities.CustomID(enums.OrderActionCancel, token)),
		}
	}
	return s.notifier.Notify(ctx, order.SupplierID, notifications.SupplierNewOrder(order, controls...))
}

func normalizePlace(input *PlaceInput) error {
	input.CustomerID = strings.TrimSpace(input.CustomerID)
	input.Location = strings.TrimSpace(input.Location)
	input.DeliveryTime = strings.TrimSpace(input.DeliveryTime)
	switch {
	case input.CustomerID == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	case input.ItemID <= 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "item id required")
	case input.Quantity <= 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	case input.Location == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "location required")
	case input.DeliveryTime == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "delivery time required")
	case utf8.RuneCountInString(input.Location) > maxFreeTextLen:
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("location must be at most %d characters", maxFreeTextLen))
	case utf8.RuneCountInString(input.DeliveryTime) > maxFreeTextLen:
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("delivery time must be at most %d characters", maxFreeTextLen))
	}
	return nil
}

func orderTotal(price int64, qty int) (int64, bool) {
	if price != 0 && int64(qty) > math.MaxInt64/price {
		return 0, false
	}
	return price * int64(qty), true
}

func notPending() error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, MessageNotPending)
}

func mapOrderLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, MessageOrderNotFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
