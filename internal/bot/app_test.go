package bot

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/guildmarket/internal/capabilities"
	"github.com/angelmondragon/guildmarket/internal/inventory"
	"github.com/angelmondragon/guildmarket/internal/notifications"
	"github.com/angelmondragon/guildmarket/internal/orders"
	"github.com/angelmondragon/guildmarket/internal/stats"
	"github.com/angelmondragon/guildmarket/internal/suppliers"
	"github.com/angelmondragon/guildmarket/pkg/db"
	"github.com/angelmondragon/guildmarket/pkg/enums"
	"github.com/angelmondragon/guildmarket/pkg/logger"
	"github.com/angelmondragon/guildmarket/pkg/migrate"
	"github.com/angelmondragon/guildmarket/pkg/outbox"
)

type memoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value.(string)
	return nil
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryStore) GetDel(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	delete(m.values, key)
	return v, nil
}

func (m *memoryStore) CapabilityKey(token string) string { return "test:capability:" + token }

type dm struct {
	recipient string
	msg       notifications.Message
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []dm
	fail bool
}

func (n *recordingNotifier) Notify(_ context.Context, recipientID string, msg notifications.Message) notifications.Result {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, dm{recipient: recipientID, msg: msg})
	if n.fail {
		return notifications.Undeliverable(enums.ReasonBlocked, nil)
	}
	return notifications.Delivered()
}

func (n *recordingNotifier) last(t *testing.T) dm {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.sent)
	return n.sent[len(n.sent)-1]
}

type fixture struct {
	app      *App
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bot.db")
	conn, err := db.OpenSQLite(fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=5000", path))
	require.NoError(t, err)
	require.NoError(t, migrate.EnsureSchema(conn))

	client := db.FromGorm(conn)
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)
	logg := logger.New(logger.Options{ServiceName: "test", Output: &bytes.Buffer{}})

	supplierSvc, err := suppliers.NewService(suppliers.NewRepository(conn), client, emitter)
	require.NoError(t, err)
	inventorySvc, err := inventory.NewService(inventory.NewRepository(conn), client, emitter, supplierSvc)
	require.NoError(t, err)
	capabilitySvc, err := capabilities.NewService(&memoryStore{values: map[string]string{}}, time.Hour)
	require.NoError(t, err)
	statsSvc, err := stats.NewService(stats.NewRepository(conn))
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	orderSvc, err := orders.NewService(orders.Deps{
		Repo:         orders.NewRepository(conn),
		Tx:           client,
		Outbox:       emitter,
		Inventory:    inventorySvc,
		Suppliers:    supplierSvc,
		Notifier:     notifier,
		Capabilities: capabilitySvc,
		Logger:       logg,
	})
	require.NoError(t, err)

	app, err := NewApp(Deps{
		Suppliers:    supplierSvc,
		Inventory:    inventorySvc,
		Orders:       orderSvc,
		Stats:        statsSvc,
		Capabilities: capabilitySvc,
		Logger:       logg,
	})
	require.NoError(t, err)
	return &fixture{app: app, notifier: notifier}
}

func member(userID string, perms int64) *discordgo.Member {
	return &discordgo.Member{User: &discordgo.User{ID: userID, Username: strings.ToLower(userID)}, Permissions: perms}
}

func opt(name string, value any) *discordgo.ApplicationCommandInteractionDataOption {
	typ := discordgo.ApplicationCommandOptionString
	if _, ok := value.(float64); ok {
		typ = discordgo.ApplicationCommandOptionInteger
	}
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: typ, Value: value}
}

func sub(name string, options ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:    name,
		Type:    discordgo.ApplicationCommandOptionSubCommand,
		Options: options,
	}
}

func (f *fixture) run(t *testing.T, m *discordgo.Member, name string, options ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionResponse {
	t.Helper()
	resp := f.app.HandleInteraction(context.Background(), &discordgo.Interaction{
		ID:      "interaction",
		Type:    discordgo.InteractionApplicationCommand,
		GuildID: "guild",
		Member:  m,
		Data:    discordgo.ApplicationCommandInteractionData{Name: name, Options: options},
	})
	require.NotNil(t, resp)
	require.NotNil(t, resp.Data)
	return resp
}

func (f *fixture) press(t *testing.T, user *discordgo.User, customID string, message *discordgo.Message) *discordgo.InteractionResponse {
	t.Helper()
	resp := f.app.HandleInteraction(context.Background(), &discordgo.Interaction{
		ID:      "button",
		Type:    discordgo.InteractionMessageComponent,
		User:    user,
		Message: message,
		Data:    discordgo.MessageComponentInteractionData{CustomID: customID, ComponentType: discordgo.ButtonComponent},
	})
	require.NotNil(t, resp)
	require.NotNil(t, resp.Data)
	return resp
}

// stock registers supplier S and lists qty Potions at 100 each.
func (f *fixture) stock(t *testing.T, qty float64) {
	t.Helper()
	f.run(t, member("S", 0), "supplier", sub("register"))
	resp := f.run(t, member("S", 0), "supplier", sub("add",
		opt("name", "Potion"), opt("quantity", qty), opt("price", 100.0)))
	require.Len(t, resp.Data.Embeds, 1)
}

func buttonIDs(components []discordgo.MessageComponent) []string {
	var ids []string
	for _, c := range components {
		row, ok := c.(discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, inner := range row.Components {
			if b, ok := inner.(discordgo.Button); ok {
				ids = append(ids, b.CustomID)
			}
		}
	}
	return ids
}

func TestPingAndHelp(t *testing.T) {
	f := newFixture(t)

	pong := f.app.HandleInteraction(context.Background(), &discordgo.Interaction{Type: discordgo.InteractionPing})
	assert.Equal(t, discordgo.InteractionResponsePong, pong.Type)

	resp := f.run(t, member("U", 0), "help")
	assert.Equal(t, discordgo.MessageFlagsEphemeral, resp.Data.Flags)
	require.Len(t, resp.Data.Embeds, 1)
	assert.NotEmpty(t, resp.Data.Embeds[0].Fields)
}

func TestEveryDefinedCommandIsRouted(t *testing.T) {
	for _, cmd := range Commands() {
		subs := 0
		for _, o := range cmd.Options {
			if o.Type == discordgo.ApplicationCommandOptionSubCommand {
				subs++
				_, ok := commandTable[cmd.Name+" "+o.Name]
				assert.True(t, ok, "missing handler for %s %s", cmd.Name, o.Name)
			}
		}
		if subs == 0 {
			_, ok := commandTable[cmd.Name]
			assert.True(t, ok, "missing handler for %s", cmd.Name)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	f := newFixture(t)
	resp := f.run(t, member("U", 0), "teleport")
	assert.Equal(t, "❌ unknown command", resp.Data.Content)
}

func TestSupplierCommandsRequireRegistration(t *testing.T) {
	f := newFixture(t)
	resp := f.run(t, member("S", 0), "supplier", sub("add",
		opt("name", "Potion"), opt("quantity", 1.0), opt("price", 1.0)))
	assert.Equal(t, "❌ "+messageRegisterFirst, resp.Data.Content)
}

func TestAddTopsUpExistingListing(t *testing.T) {
	f := newFixture(t)
	f.stock(t, 10)

	resp := f.run(t, member("S", 0), "supplier", sub("add",
		opt("name", "potion"), opt("quantity", 5.0), opt("price", 120.0)))
	require.Len(t, resp.Data.Embeds, 1)
	embed := resp.Data.Embeds[0]
	assert.Equal(t, "Updated Potion", embed.Title)
	assert.Equal(t, "10 → 15", embed.Fields[0].Value)
	assert.Equal(t, "100 ¥ → 120 ¥", embed.Fields[1].Value)

	inventoryResp := f.run(t, member("S", 0), "supplier", sub("inventory"))
	require.Len(t, inventoryResp.Data.Embeds, 1)
	assert.Len(t, inventoryResp.Data.Embeds[0].Fields, 1)
}

func TestValidationMessages(t *testing.T) {
	f := newFixture(t)
	f.stock(t, 10)

	resp := f.run(t, member("C", 0), "order",
		opt("item_id", 1.0), opt("quantity", 0.0), opt("location", "Town"), opt("delivery_time", "Noon"))
	assert.Equal(t, "❌ Quantity must be at least 1.", resp.Data.Content)

	resp = f.run(t, member("C", 0), "order",
		opt("item_id", 1.0), opt("quantity", 1.5), opt("location", "Town"), opt("delivery_time", "Noon"))
	assert.Equal(t, "❌ Quantity is invalid.", resp.Data.Content)
}

func TestOrderOutcomes(t *testing.T) {
	f := newFixture(t)
	f.stock(t, 3)

	resp := f.run(t, member("C", 0), "order",
		opt("item_id", 1.0), opt("quantity", 5.0), opt("location", "Town"), opt("delivery_time", "Noon"))
	assert.Equal(t, "❌ Insufficient stock: 3 available, 5 requested.", resp.Data.Content)

	resp = f.run(t, member("S", 0), "order",
		opt("item_id", 1.0), opt("quantity", 1.0), opt("location", "Town"), opt("delivery_time", "Noon"))
	assert.Equal(t, "❌ You cannot order your own item.", resp.Data.Content)

	resp = f.run(t, member("C", 0), "order",
		opt("item_id", 99.0), opt("quantity", 1.0), opt("location", "Town"), opt("delivery_time", "Noon"))
	assert.Equal(t, "❌ Item not found.", resp.Data.Content)

	f.notifier.fail = true
	resp = f.run(t, member("C", 0), "order",
		opt("item_id", 1.0), opt("quantity", 2.0), opt("location", "Town"), opt("delivery_time", "Noon"))
	require.Len(t, resp.Data.Embeds, 1)
	assert.Equal(t, "Order #1 placed", resp.Data.Embeds[0].Title)
	assert.Contains(t, resp.Data.Content, "Could not DM the supplier")
	assert.Contains(t, resp.Data.Content, "<@S>")
}

func TestSupplierConfirmsFromDirectMessage(t *testing.T) {
	f := newFixture(t)
	f.stock(t, 10)

	resp := f.run(t, member("C", 0), "order",
		opt("item_id", 1.0), opt("quantity", 2.0), opt("location", "Town"), opt("delivery_time", "Noon"))
	assert.Equal(t, "The supplier has been notified.", resp.Data.Content)

	note := f.notifier.last(t)
	assert.Equal(t, "S", note.recipient)
	require.Len(t, note.msg.Buttons, 2)
	confirmID := note.msg.Buttons[0].CustomID

	dmMessage := &discordgo.Message{
		Embeds:     []*discordgo.MessageEmbed{note.msg.Embed()},
		Components: note.msg.Components(),
	}

	// the customer cannot use the supplier's control
	denied := f.press(t, &discordgo.User{ID: "C"}, confirmID, dmMessage)
	assert.Equal(t, "❌ This control belongs to someone else.", denied.Data.Content)

	done := f.press(t, &discordgo.User{ID: "S"}, confirmID, dmMessage)
	assert.Equal(t, discordgo.InteractionResponseUpdateMessage, done.Type)
	assert.Contains(t, done.Data.Content, "Order #1 completed.")
	assert.Contains(t, done.Data.Content, "The customer has been notified.")
	assert.Empty(t, done.Data.Components)
	assert.Equal(t, "C", f.notifier.last(t).recipient)

	again := f.press(t, &discordgo.User{ID: "S"}, note.msg.Buttons[1].CustomID, dmMessage)
	assert.Equal(t, "❌ This control has expired.", again.Data.Content)
}

func TestCustomerCancelsFromOrderList(t *testing.T) {
	f := newFixture(t)
	f.stock(t, 10)
	for i := 0; i < 2; i++ {
		f.run(t, member("C", 0), "order",
			opt("item_id", 1.0), opt("quantity", 1.0), opt("location", "Town"), opt("delivery_time", "Noon"))
	}

	list := f.run(t, member("C", 0), "orders")
	ids := buttonIDs(list.Data.Components)
	require.Len(t, ids, 2)

	message := &discordgo.Message{Embeds: list.Data.Embeds, Components: list.Data.Components}
	resp := f.press(t, &discordgo.User{ID: "C"}, ids[0], message)
	assert.Contains(t, resp.Data.Content, "Order #2 cancelled.")
	assert.Contains(t, resp.Data.Content, "The supplier has been notified.")
	assert.Equal(t, []string{ids[1]}, buttonIDs(resp.Data.Components))

	// the slash command and the button agree on state
	again := f.run(t, member("C", 0), "cancel", opt("order_id", 2.0))
	assert.Equal(t, "❌ "+messageAlreadyProcessed, again.Data.Content)

	inv := f.run(t, member("S", 0), "supplier", sub("inventory"))
	assert.Contains(t, inv.Data.Embeds[0].Fields[0].Value, "Available: 9")
}

func TestReceivedOrdersShowsQueueAndSummary(t *testing.T) {
	f := newFixture(t)
	f.stock(t, 10)
	for i := 0; i < 3; i++ {
		f.run(t, member("C", 0), "order",
			opt("item_id", 1.0), opt("quantity", 1.0), opt("location", "Town"), opt("delivery_time", "Noon"))
	}
	resp := f.run(t, member("S", 0), "confirm", opt("order_id", 1.0))
	assert.Equal(t, "✅ Order #1 completed.\nThe customer has been notified.", resp.Data.Content)

	queue := f.run(t, member("S", 0), "received-orders")
	assert.Len(t, buttonIDs(queue.Data.Components), 4)
	require.Len(t, queue.Data.Embeds, 2)
	assert.Len(t, queue.Data.Embeds[0].Fields, 2)
	summary := queue.Data.Embeds[1].Fields
	assert.Equal(t, "1", summary[0].Value)
	assert.Equal(t, "100 ¥", summary[1].Value)
	assert.Equal(t, "0", summary[2].Value)
}

func TestStatsNeedsAdministrator(t *testing.T) {
	f := newFixture(t)
	f.stock(t, 10)

	resp := f.run(t, member("U", 0), "stats")
	assert.Equal(t, "❌ Administrator permission required.", resp.Data.Content)

	resp = f.run(t, member("A", discordgo.PermissionAdministrator), "stats")
	require.Len(t, resp.Data.Embeds, 1)
	assert.Equal(t, "1", resp.Data.Embeds[0].Fields[0].Value)
}

func TestCatalogListsStock(t *testing.T) {
	f := newFixture(t)
	resp := f.run(t, member("C", 0), "catalog")
	assert.Contains(t, resp.Data.Content, "No items")

	f.stock(t, 4)
	resp = f.run(t, member("C", 0), "catalog")
	require.Len(t, resp.Data.Embeds, 1)
	field := resp.Data.Embeds[0].Fields[0]
	assert.Equal(t, "#1 Potion", field.Name)
	assert.Contains(t, field.Value, "Supplier: s")
}

func TestMalformedButton(t *testing.T) {
	f := newFixture(t)
	resp := f.press(t, &discordgo.User{ID: "C"}, "something:else", nil)
	assert.Equal(t, "❌ Unknown control.", resp.Data.Content)
}

func TestWithoutControls(t *testing.T) {
	rows := []discordgo.MessageComponent{
		&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			&discordgo.Button{CustomID: "order:confirm:a"},
			&discordgo.Button{CustomID: "order:cancel:a"},
		}},
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{CustomID: "order:cancel:b"},
		}},
	}
	out := withoutControls(rows, "a")
	require.Len(t, out, 1)
	row := out[0].(discordgo.ActionsRow)
	require.Len(t, row.Components, 1)
	assert.Equal(t, "order:cancel:b", row.Components[0].(discordgo.Button).CustomID)
}

func TestNewAppRequiresDeps(t *testing.T) {
	_, err := NewApp(Deps{})
	assert.Error(t, err)
}
