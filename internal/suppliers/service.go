package suppliers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/angelmondragon/guildmarket/pkg/db/models"
	"github.com/angelmondragon/guildmarket/pkg/enums"
	pkgerrors "github.com/angelmondragon/guildmarket/pkg/errors"
	"github.com/angelmondragon/guildmarket/pkg/outbox"
	"github.com/angelmondragon/guildmarket/pkg/outbox/payloads"
)

const maxUsernameLen = 100

// MessageNotRegistered is shown when a member uses supplier commands before registering.
const MessageNotRegistered = "supplier not registered"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service manages supplier registration.
type Service interface {
	Register(ctx context.Context, userID, username string) (*models.Supplier, bool, error)
	// RequireActive runs on tx when given so callers can check inside their own transaction.
	RequireActive(ctx context.Context, tx *gorm.DB, userID string) (*models.Supplier, error)
	// LockActive is RequireActive plus a row lock held until tx ends.
	LockActive(ctx context.Context, tx *gorm.DB, userID string) (*models.Supplier, error)
	Get(ctx context.Context, userID string) (*models.Supplier, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outbox.Emitter
}

func NewService(repo Repository, tx txRunner, emitter outbox.Emitter) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("suppliers repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{repo: repo, tx: tx, outbox: emitter}, nil
}

func (s *service) Register(ctx context.Context, userID, username string) (*models.Supplier, bool, error) {
	userID = strings.TrimSpace(userID)
	username = strings.TrimSpace(username)
	if userID == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if username == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "username required")
	}
	if utf8.RuneCountInString(username) > maxUsernameLen {
		username = string([]rune(username)[:maxUsernameLen])
	}

	var (
		result  *models.Supplier
		created bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		_, err := repo.FindByID(ctx, userID)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			created = true
		case err != nil:
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load supplier")
		}

		if err := repo.Upsert(ctx, &models.Supplier{UserID: userID, Username: username, Active: true}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save supplier")
		}
		stored, err := repo.FindByID(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload supplier")
		}
		result = stored

		if !created {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSupplierRegistered,
			AggregateType: enums.AggregateSupplier,
			AggregateID:   userID,
			Actor:         &outbox.ActorRef{UserID: userID, Role: enums.ActorRoleSupplier},
			Data: payloads.SupplierRegisteredEvent{
				SupplierID: userID,
				Username:   username,
			},
		})
	})
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

func (s *service) RequireActive(ctx context.Context, tx *gorm.DB, userID string) (*models.Supplier, error) {
	return active(s.repo.WithTx(tx).FindByID(ctx, userID))
}

func (s *service) LockActive(ctx context.Context, tx *gorm.DB, userID string) (*models.Supplier, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "supplier lock needs a transaction")
	}
	return active(s.repo.WithTx(tx).FindByIDForUpdate(ctx, userID))
}

func active(supplier *models.Supplier, err error) (*models.Supplier, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, MessageNotRegistered)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load supplier")
	}
	if !supplier.Active {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, MessageNotRegistered)
	}
	return supplier, nil
}

func (s *service) Get(ctx context.Context, userID string) (*models.Supplier, error) {
	supplier, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "supplier not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load supplier")
	}
	return supplier, nil
}
