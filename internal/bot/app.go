package bot

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"
	"github.com/go-playground/validator/v10"

	"github.com/angelmondragon/guildmarket/internal/capabilities"
	"github.com/angelmondragon/guildmarket/internal/inventory"
	"github.com/angelmondragon/guildmarket/internal/orders"
	"github.com/angelmondragon/guildmarket/internal/stats"
	"github.com/angelmondragon/guildmarket/pkg/db/models"
	"github.com/angelmondragon/guildmarket/pkg/logger"
)

type SupplierRegistry interface {
	Register(ctx context.Context, userID, username string) (*models.Supplier, bool, error)
}

type Ledger interface {
	UpsertListing(ctx context.Context, input inventory.UpsertListingInput) (*inventory.ListingResult, error)
	ApplyPatch(ctx context.Context, patch inventory.ListingPatch) (*inventory.PatchResult, error)
	MergeDuplicates(ctx context.Context, supplierID, name string) (*inventory.MergeResult, error)
	Remove(ctx context.Context, itemID int64, supplierID string) error
	ListForSupplier(ctx context.Context, supplierID string) ([]models.InventoryItem, error)
	Catalog(ctx context.Context) ([]models.InventoryItemWithSupplier, error)
}

type Lifecycle interface {
	Place(ctx context.Context, input orders.PlaceInput) (*orders.PlaceResult, error)
	Confirm(ctx context.Context, input orders.TransitionInput) (*orders.TransitionResult, error)
	Cancel(ctx context.Context, input orders.TransitionInput) (*orders.TransitionResult, error)
	ListForCustomer(ctx context.Context, customerID string) ([]models.Order, error)
	ListForSupplier(ctx context.Context, supplierID string) ([]models.Order, error)
	SupplierSummary(ctx context.Context, supplierID string) (*orders.SupplierSummary, error)
}

type StatsSource interface {
	Snapshot(ctx context.Context) (*stats.Stats, error)
}

type Capabilities interface {
	Issue(ctx context.Context, grant capabilities.Capability) (string, error)
	Redeem(ctx context.Context, token, actorID string) (*capabilities.Capability, error)
	Restore(ctx context.Context, token string, grant capabilities.Capability) error
}

// Deps are the services the command surface drives.
type Deps struct {
	Suppliers    SupplierRegistry
	Inventory    Ledger
	Orders       Lifecycle
	Stats        StatsSource
	Capabilities Capabilities
	Logger       *logger.Logger
}

// App is the application context shared by every interaction handler. It is
// built once at startup and holds no per-request state.
type App struct {
	suppliers    SupplierRegistry
	inventory    Ledger
	orders       Lifecycle
	stats        StatsSource
	capabilities Capabilities
	logg         *logger.Logger
	validator    *validator.Validate
}

func NewApp(deps Deps) (*App, error) {
	switch {
	case deps.Suppliers == nil:
		return nil, errors.New("supplier registry required")
	case deps.Inventory == nil:
		return nil, errors.New("inventory ledger required")
	case deps.Orders == nil:
		return nil, errors.New("order lifecycle required")
	case deps.Stats == nil:
		return nil, errors.New("stats source required")
	case deps.Capabilities == nil:
		return nil, errors.New("capabilities required")
	case deps.Logger == nil:
		return nil, errors.New("logger required")
	}
	return &App{
		suppliers:    deps.Suppliers,
		inventory:    deps.Inventory,
		orders:       deps.Orders,
		stats:        deps.Stats,
		capabilities: deps.Capabilities,
		logg:         deps.Logger,
		validator:    newValidator(),
	}, nil
}

// HandleInteraction answers one interaction. The returned response is sent
// back as the HTTP body of the interactions webhook.
func (a *App) HandleInteraction(ctx context.Context, i *discordgo.Interaction) *discordgo.InteractionResponse {
	if i == nil {
		return errorResponse("empty interaction")
	}
	switch i.Type {
	case discordgo.InteractionPing:
		return &discordgo.InteractionResponse{Type: discordgo.InteractionResponsePong}
	case discordgo.InteractionApplicationCommand:
		return a.handleCommand(ctx, i)
	case discordgo.InteractionMessageComponent:
		return a.handleButton(ctx, i)
	}
	return errorResponse("unsupported interaction")
}

func (a *App) handleCommand(ctx context.Context, i *discordgo.Interaction) *discordgo.InteractionResponse {
	data, ok := i.Data.(discordgo.ApplicationCommandInteractionData)
	if !ok {
		return errorResponse("malformed command")
	}
	key, opts := commandKey(data)
	inv := newInvocation(key, interactionUser(i), i.Member, i.GuildID, opts)

	ctx = a.logg.WithInteraction(ctx, i.ID, key)
	ctx = a.logg.WithUserID(ctx, inv.UserID)
	if inv.GuildID != "" {
		ctx = a.logg.WithGuildID(ctx, inv.GuildID)
	}

	handler, ok := commandTable[key]
	if !ok {
		a.logg.Warn(ctx, "unknown command")
		return errorResponse("unknown command")
	}
	if inv.UserID == "" {
		return errorResponse("could not identify you")
	}
	reply, err := handler(a, ctx, inv)
	if err != nil {
		a.logFailure(ctx, err)
		return errorResponse(userMessage(err))
	}
	return reply.response()
}

func interactionUser(i *discordgo.Interaction) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}
