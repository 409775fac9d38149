package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/guildmarket/api/responses"
	"github.com/angelmondragon/guildmarket/api/validators"
	"github.com/angelmondragon/guildmarket/pkg/db/models"
	"github.com/angelmondragon/guildmarket/pkg/enums"
	pkgerrors "github.com/angelmondragon/guildmarket/pkg/errors"
	"github.com/angelmondragon/guildmarket/pkg/logger"
)

const (
	defaultOrderLimit = 15
	maxOrderLimit     = 100
)

type orderReader interface {
	FindByID(ctx context.Context, orderID int64) (*models.Order, error)
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]models.Order, error)
	ListBySupplier(ctx context.Context, supplierID string, limit int) ([]models.Order, error)
}

type orderResponse struct {
	ID           int64             `json:"id"`
	CustomerID   string            `json:"customer_id"`
	SupplierID   string            `json:"supplier_id"`
	ItemID       *int64            `json:"item_id"`
	ItemName     string            `json:"item_name"`
	Quantity     int               `json:"quantity"`
	TotalPrice   int64             `json:"total_price"`
	Location     string            `json:"location"`
	DeliveryTime string            `json:"delivery_time"`
	Status       enums.OrderStatus `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	CancelledAt  *time.Time        `json:"cancelled_at,omitempty"`
	CancelledBy  *enums.ActorRole  `json:"cancelled_by,omitempty"`
}

func toOrderResponse(o models.Order) orderResponse {
	return orderResponse{
		ID:           o.ID,
		CustomerID:   o.CustomerID,
		SupplierID:   o.SupplierID,
		ItemID:       o.ItemID,
		ItemName:     o.ItemName,
		Quantity:     o.Quantity,
		TotalPrice:   o.TotalPrice,
		Location:     o.Location,
		DeliveryTime: o.DeliveryTime,
		Status:       o.Status,
		CreatedAt:    o.CreatedAt,
		CompletedAt:  o.CompletedAt,
		CancelledAt:  o.CancelledAt,
		CancelledBy:  o.CancelledBy,
	}
}

func toOrderResponses(list []models.Order) []orderResponse {
	out := make([]orderResponse, 0, len(list))
	for _, o := range list {
		out = append(out, toOrderResponse(o))
	}
	return out
}

// AdminOrderDetail returns a single order by id.
func AdminOrderDetail(repo orderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders repository unavailable"))
			return
		}

		orderID, err := validators.ParsePathID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := repo.FindByID(r.Context(), orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order"))
			return
		}
		responses.WriteSuccess(w, toOrderResponse(*order))
	}
}

// AdminCustomerOrders lists the most recent orders placed by a member.
func AdminCustomerOrders(repo orderReader, logg *logger.Logger) http.HandlerFunc {
	return listOrders(repo, logg, "customerId", orderReader.ListByCustomer)
}

// AdminSupplierOrders lists the most recent orders received by a supplier.
func AdminSupplierOrders(repo orderReader, logg *logger.Logger) http.HandlerFunc {
	return listOrders(repo, logg, "supplierId", orderReader.ListBySupplier)
}

func listOrders(
	repo orderReader,
	logg *logger.Logger,
	param string,
	list func(orderReader, context.Context, string, int) ([]models.Order, error),
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders repository unavailable"))
			return
		}
		userID, err := validators.ParsePathString(r, param)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", defaultOrderLimit, 1, maxOrderLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orders, err := list(repo, r.Context(), userID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders"))
			return
		}
		responses.WriteSuccess(w, map[string]any{"orders": toOrderResponses(orders)})
	}
}
