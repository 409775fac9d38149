package stats

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/guildmarket/pkg/enums"
	pkgerrors "github.com/angelmondragon/guildmarket/pkg/errors"
)

// Stats is the admin overview of the marketplace. Volumes are in the
// smallest currency unit; GrossVolume includes cancelled orders.
type Stats struct {
	Suppliers             int64           `json:"suppliers"`
	ActiveListings        int64           `json:"active_listings"`
	TotalOrders           int64           `json:"total_orders"`
	PendingOrders         int64           `json:"pending_orders"`
	CompletedOrders       int64           `json:"completed_orders"`
	CancelledOrders       int64           `json:"cancelled_orders"`
	GrossVolume           int64           `json:"gross_volume"`
	CompletedVolume       int64           `json:"completed_volume"`
	AverageCompletedOrder decimal.Decimal `json:"average_completed_order"`
}

type Service interface {
	Snapshot(ctx context.Context) (*Stats, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("stats repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Snapshot(ctx context.Context) (*Stats, error) {
	suppliers, err := s.repo.CountSuppliers(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count suppliers")
	}
	listings, err := s.repo.CountActiveListings(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count listings")
	}
	totals, err := s.repo.OrderTotalsByStatus(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate orders")
	}

	out := &Stats{
		Suppliers:             suppliers,
		ActiveListings:        listings,
		AverageCompletedOrder: decimal.Zero,
	}
	for _, row := range totals {
		out.TotalOrders += row.Count
		out.GrossVolume += row.Volume
		switch row.Status {
		case enums.OrderStatusPending:
			out.PendingOrders = row.Count
		case enums.OrderStatusCompleted:
			out.CompletedOrders = row.Count
			out.CompletedVolume = row.Volume
		case enums.OrderStatusCancelled:
			out.CancelledOrders = row.Count
		}
	}
	if out.CompletedOrders > 0 {
		out.AverageCompletedOrder = decimal.NewFromInt(out.CompletedVolume).
			Div(decimal.NewFromInt(out.CompletedOrders)).
			Round(2)
	}
	return out, nil
}
