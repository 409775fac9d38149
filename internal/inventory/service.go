package inventory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/angelmondragon/guildmarket/pkg/db/models"
	"github.com/angelmondragon/guildmarket/pkg/enums"
	pkgerrors "github.com/angelmondragon/guildmarket/pkg/errors"
	"github.com/angelmondragon/guildmarket/pkg/outbox"
	"github.com/angelmondragon/guildmarket/pkg/outbox/payloads"
)

const (
	MessageItemNotFound      = "item not found"
	MessageInsufficientStock = "insufficient stock"
	MessageNoDuplicates      = "no duplicate listings to merge"

	maxNameLen        = 100
	maxDescriptionLen = 500
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// SupplierChecker rejects members without an active supplier record.
// LockActive also holds the supplier row so name lookups followed by an
// insert cannot race another writer for the same supplier.
type SupplierChecker interface {
	RequireActive(ctx context.Context, tx *gorm.DB, userID string) (*models.Supplier, error)
	LockActive(ctx context.Context, tx *gorm.DB, userID string) (*models.Supplier, error)
}

// Service owns listing quantity, price and description.
type Service interface {
	UpsertListing(ctx context.Context, input UpsertListingInput) (*ListingResult, error)
	ApplyPatch(ctx context.Context, patch ListingPatch) (*PatchResult, error)
	MergeDuplicates(ctx context.Context, supplierID, name string) (*MergeResult, error)
	Remove(ctx context.Context, itemID int64, supplierID string) error
	ListForSupplier(ctx context.Context, supplierID string) ([]models.InventoryItem, error)
	Catalog(ctx context.Context) ([]models.InventoryItemWithSupplier, error)

	// The methods below join the caller's transaction.
	FindWithSupplier(ctx context.Context, tx *gorm.DB, itemID int64) (*models.InventoryItemWithSupplier, error)
	Reserve(ctx context.Context, tx *gorm.DB, itemID int64, qty int) error
	Release(ctx context.Context, tx *gorm.DB, itemID int64, qty int) error
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outbox.Emitter
	suppliers SupplierChecker
}

// NewService wires the inventory ledger.
func NewService(repo Repository, tx txRunner, emitter outbox.Emitter, suppliers SupplierChecker) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if suppliers == nil {
		return nil, fmt.Errorf("supplier checker required")
	}
	return &service{repo: repo, tx: tx, outbox: emitter, suppliers: suppliers}, nil
}

func (s *service) UpsertListing(ctx context.Context, input UpsertListingInput) (*ListingResult, error) {
	name, err := normalizeName(input.Name)
	if err != nil {
		return nil, err
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	if input.Price < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be zero or more")
	}
	description, err := normalizeDescription(input.Description)
	if err != nil {
		return nil, err
	}

	var result ListingResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.suppliers.LockActive(ctx, tx, input.SupplierID); err != nil {
			return err
		}
		repo := s.repo.WithTx(tx)

		existing, err := repo.FindByName(ctx, input.SupplierID, name, true)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listings")
		}

		var itemID int64
		if len(existing) == 0 {
			item := &models.InventoryItem{
				SupplierID:  input.SupplierID,
				ItemName:    name,
				Quantity:    input.Quantity,
				Price:       input.Price,
				Description: description,
			}
			if err := repo.Create(ctx, item); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create listing")
			}
			itemID = item.ID
		} else {
			// the most recently inserted duplicate receives the stock
			target := existing[len(existing)-1]
			result.Merged = true
			result.PreviousQuantity = target.Quantity
			result.PreviousPrice = target.Price
			updates := map[string]any{
				"quantity": gorm.Expr("quantity + ?", input.Quantity),
				"price":    input.Price,
			}
			if description != nil {
				updates["description"] = *description
			}
			if err := repo.Update(ctx, target.ID, updates); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update listing")
			}
			itemID = target.ID
		}

		stored, err := repo.FindByID(ctx, itemID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload listing")
		}
		result.Item = *stored

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventListingUpserted,
			AggregateType: enums.AggregateListing,
			AggregateID:   formatID(stored.ID),
			Actor:         supplierActor(input.SupplierID),
			Data: payloads.ListingUpsertedEvent{
				ItemID:           stored.ID,
				SupplierID:       stored.SupplierID,
				ItemName:         stored.ItemName,
				Quantity:         stored.Quantity,
				Price:            stored.Price,
				Merged:           result.Merged,
				PreviousQuantity: result.PreviousQuantity,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *service) ApplyPatch(ctx context.Context, patch ListingPatch) (*PatchResult, error) {
	if patch.ItemID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id required")
	}
	updates, fields, err := buildPatchUpdates(patch)
	if err != nil {
		return nil, err
	}

	var result PatchResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.suppliers.RequireActive(ctx, tx, patch.SupplierID); err != nil {
			return err
		}
		repo := s.repo.WithTx(tx)

		before, err := repo.FindOwned(ctx, patch.ItemID, patch.SupplierID)
		if err != nil {
			return mapItemLookupError(err)
		}
		affected, err := repo.UpdateOwned(ctx, patch.ItemID, patch.SupplierID, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "patch listing")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, MessageItemNotFound)
		}
		after, err := repo.FindByID(ctx, patch.ItemID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload listing")
		}
		result = PatchResult{Before: *before, After: *after, Fields: fields}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventListingUpdated,
			AggregateType: enums.AggregateListing,
			AggregateID:   formatID(after.ID),
			Actor:         supplierActor(patch.SupplierID),
			Data: payloads.ListingUpdatedEvent{
				ItemID:     after.ID,
				SupplierID: after.SupplierID,
				Fields:     fields,
				Quantity:   after.Quantity,
				Price:      after.Price,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *service) MergeDuplicates(ctx context.Context, supplierID, name string) (*MergeResult, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}

	var result MergeResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.suppliers.LockActive(ctx, tx, supplierID); err != nil {
			return err
		}
		repo := s.repo.WithTx(tx)

		rows, err := repo.FindByName(ctx, supplierID, name, true)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listings")
		}
		if len(rows) < 2 {
			return pkgerrors.New(pkgerrors.CodeConflict, MessageNoDuplicates).
				WithDetails(map[string]int{"matches": len(rows)})
		}

		kept := rows[0]
		latest := rows[len(rows)-1]
		total := 0
		removed := make([]int64, 0, len(rows)-1)
		for i, row := range rows {
			total += row.Quantity
			if i > 0 {
				removed = append(removed, row.ID)
			}
		}

		if err := repo.RepointOrders(ctx, removed, kept.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "repoint orders")
		}
		if err := repo.DeleteByIDs(ctx, removed); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete duplicates")
		}
		if err := repo.Update(ctx, kept.ID, map[string]any{
			"quantity":    total,
			"price":       latest.Price,
			"description": latest.Description,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update merged listing")
		}

		stored, err := repo.FindByID(ctx, kept.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload listing")
		}
		result = MergeResult{
			Item:         *stored,
			KeptID:       kept.ID,
			RemovedIDs:   removed,
			RemovedCount: len(removed),
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventListingsMerged,
			AggregateType: enums.AggregateListing,
			AggregateID:   formatID(kept.ID),
			Actor:         supplierActor(supplierID),
			Data: payloads.ListingsMergedEvent{
				KeptItemID:     kept.ID,
				RemovedItemIDs: removed,
				SupplierID:     supplierID,
				ItemName:       stored.ItemName,
				Quantity:       stored.Quantity,
				Price:          stored.Price,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Remove deletes a listing owned by supplierID. Missing and foreign items
// both report not found.
func (s *service) Remove(ctx context.Context, itemID int64, supplierID string) error {
	if itemID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "item id required")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.suppliers.RequireActive(ctx, tx, supplierID); err != nil {
			return err
		}
		repo := s.repo.WithTx(tx)

		item, err := repo.FindOwned(ctx, itemID, supplierID)
		if err != nil {
			return mapItemLookupError(err)
		}
		if err := repo.DetachOrders(ctx, itemID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "detach orders")
		}
		affected, err := repo.DeleteOwned(ctx, itemID, supplierID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete listing")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, MessageItemNotFound)
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventListingRemoved,
			AggregateType: enums.AggregateListing,
			AggregateID:   formatID(itemID),
			Actor:         supplierActor(supplierID),
			Data: payloads.ListingRemovedEvent{
				ItemID:     itemID,
				SupplierID: supplierID,
				ItemName:   item.ItemName,
			},
		})
	})
}

func (s *service) ListForSupplier(ctx context.Context, supplierID string) ([]models.InventoryItem, error) {
	if _, err := s.suppliers.RequireActive(ctx, nil, supplierID); err != nil {
		return nil, err
	}
	items, err := s.repo.ListBySupplier(ctx, supplierID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list listings")
	}
	return items, nil
}

func (s *service) Catalog(ctx context.Context) ([]models.InventoryItemWithSupplier, error) {
	rows, err := s.repo.ListAvailable(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list catalog")
	}
	return rows, nil
}

func (s *service) FindWithSupplier(ctx context.Context, tx *gorm.DB, itemID int64) (*models.InventoryItemWithSupplier, error) {
	row, err := s.repo.WithTx(tx).FindWithSupplier(ctx, itemID)
	if err != nil {
		return nil, mapItemLookupError(err)
	}
	return row, nil
}

// Reserve takes qty out of stock with a single conditional update so
// concurrent reservations can never push the quantity below zero.
func (s *service) Reserve(ctx context.Context, tx *gorm.DB, itemID int64, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	repo := s.repo.WithTx(tx)
	affected, err := repo.Decrement(ctx, itemID, qty)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve stock")
	}
	if affected == 1 {
		return nil
	}
	item, err := repo.FindByID(ctx, itemID)
	if err != nil {
		return mapItemLookupError(err)
	}
	return InsufficientStock(item.Quantity, qty)
}

// Release returns qty to stock. A listing that no longer exists is skipped.
func (s *service) Release(ctx context.Context, tx *gorm.DB, itemID int64, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	if _, err := s.repo.WithTx(tx).Increment(ctx, itemID, qty); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release stock")
	}
	return nil
}

// InsufficientStock builds the conflict returned when a request exceeds stock.
func InsufficientStock(available, requested int) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeConflict, MessageInsufficientStock).
		WithDetails(InsufficientStockDetails{Available: available, Requested: requested})
}

func mapItemLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, MessageItemNotFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listing")
}

func normalizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "item name required")
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item name must be at most %d characters", maxNameLen))
	}
	return name, nil
}

// normalizeDescription treats blank input as absent.
func normalizeDescription(raw *string) (*string, error) {
	if raw == nil {
		return nil, nil
	}
	desc := strings.TrimSpace(*raw)
	if desc == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(desc) > maxDescriptionLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("description must be at most %d characters", maxDescriptionLen))
	}
	return &desc, nil
}

func supplierActor(userID string) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: userID, Role: enums.ActorRoleSupplier}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
