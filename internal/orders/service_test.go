package orders

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/guildmarket/internal/capabilities"
	"github.com/angelmondragon/guildmarket/internal/inventory"
	"github.com/angelmondragon/guildmarket/internal/notifications"
	"github.com/angelmondragon/guildmarket/internal/suppliers"
	"github.com/angelmondragon/guildmarket/pkg/db"
	"github.com/angelmondragon/guildmarket/pkg/db/models"
	"github.com/angelmondragon/guildmarket/pkg/enums"
	pkgerrors "github.com/angelmondragon/guildmarket/pkg/errors"
	"github.com/angelmondragon/guildmarket/pkg/logger"
	"github.com/angelmondragon/guildmarket/pkg/metrics"
	"github.com/angelmondragon/guildmarket/pkg/migrate"
	"github.com/angelmondragon/guildmarket/pkg/outbox"
)

type sentNotification struct {
	recipient string
	msg       notifications.Message
}

type stubNotifier struct {
	mu     sync.Mutex
	sent   []sentNotification
	result notifications.Result
}

func (n *stubNotifier) Notify(_ context.Context, recipientID string, msg notifications.Message) notifications.Result {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{recipient: recipientID, msg: msg})
	if n.result.Status == "" {
		return notifications.Delivered()
	}
	return n.result
}

func (n *stubNotifier) last() sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent[len(n.sent)-1]
}

type stubIssuer struct {
	mu     sync.Mutex
	issued []capabilities.Capability
	err    error
}

func (s *stubIssuer) Issue(_ context.Context, grant capabilities.Capability) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.issued = append(s.issued, grant)
	return fmt.Sprintf("tok-%d", len(s.issued)), nil
}

type stubLimiter struct {
	allowed bool
	err     error
	scopes  []string
}

func (l *stubLimiter) FixedWindowAllow(_ context.Context, scope string, _ int64, _ time.Duration) (bool, int64, error) {
	l.scopes = append(l.scopes, scope)
	return l.allowed, 1, l.err
}

type fixture struct {
	svc       Service
	conn      *gorm.DB
	inventory inventory.Service
	suppliers suppliers.Service
	notifier  *stubNotifier
	issuer    *stubIssuer
	limiter   *stubLimiter
	registry  *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orders.db")
	conn, err := db.OpenSQLite(fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=5000", path))
	require.NoError(t, err)
	require.NoError(t, migrate.EnsureSchema(conn))

	client := db.FromGorm(conn)
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)
	supplierSvc, err := suppliers.NewService(suppliers.NewRepository(conn), client, emitter)
	require.NoError(t, err)
	inventorySvc, err := inventory.NewService(inventory.NewRepository(conn), client, emitter, supplierSvc)
	require.NoError(t, err)

	f := &fixture{
		conn:      conn,
		inventory: inventorySvc,
		suppliers: supplierSvc,
		notifier:  &stubNotifier{},
		issuer:    &stubIssuer{},
		limiter:   &stubLimiter{allowed: true},
		registry:  prometheus.NewRegistry(),
	}
	f.svc, err = NewService(Deps{
		Repo:         NewRepository(conn),
		Tx:           client,
		Outbox:       emitter,
		Inventory:    inventorySvc,
		Suppliers:    supplierSvc,
		Notifier:     f.notifier,
		Capabilities: f.issuer,
		Limiter:      f.limiter,
		Metrics:      metrics.NewOrderMetrics(f.registry),
		Logger:       logger.New(logger.Options{ServiceName: "test", Output: &bytes.Buffer{}}),
		Config:       Config{RateLimit: 5, RateWindow: time.Minute},
	})
	require.NoError(t, err)
	return f
}

// potion registers supplier "S" and lists Potion qty=10 price=100.
func (f *fixture) potion(t *testing.T, qty int) models.InventoryItem {
	t.Helper()
	ctx := context.Background()
	_, _, err := f.suppliers.Register(ctx, "S", "Supplier")
	require.NoError(t, err)
	res, err := f.inventory.UpsertListing(ctx, inventory.UpsertListingInput{
		SupplierID: "S",
		Name:       "Potion",
		Quantity:   qty,
		Price:      100,
	})
	require.NoError(t, err)
	return res.Item
}

func (f *fixture) available(t *testing.T, itemID int64) int {
	t.Helper()
	var item models.InventoryItem
	require.NoError(t, f.conn.First(&item, itemID).Error)
	return item.Quantity
}

func (f *fixture) place(t *testing.T, customer string, itemID int64, qty int) *PlaceResult {
	t.Helper()
	res, err := f.svc.Place(context.Background(), PlaceInput{
		CustomerID:   customer,
		ItemID:       itemID,
		Quantity:     qty,
		Location:     "North gate",
		DeliveryTime: "tonight",
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) countOrders(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.conn.Model(&models.Order{}).Count(&count).Error)
	return count
}

func TestScenarioPlaceThenConfirm(t *testing.T) {
	f := newFixture(t)
	item := f.potion(t, 10)

	placed := f.place(t, "C", item.ID, 3)
	assert.Equal(t, enums.OrderStatusPending, placed.Order.Status)
	assert.Equal(t, int64(300), placed.Order.TotalPrice)
	assert.Equal(t, "S", placed.SupplierID)
	assert.Equal(t, "Supplier", placed.SupplierName)
	assert.True(t, placed.Delivery.IsDelivered())
	assert.Equal(t, 7, f.available(t, item.ID))

	note := f.notifier.last()
	assert.Equal(t, "S", note.recipient)
	require.Len(t, note.msg.Buttons, 2)
	assert.Equal(t, "order:confirm:tok-1", note.msg.Buttons[0].CustomID)
	assert.Equal(t, "order:cancel:tok-1", note.msg.Buttons[1].CustomID)
	require.Len(t, f.issuer.issued, 1)
	assert.Equal(t, capabilities.Capability{OrderID: placed.Order.ID, Role: enums.ActorRoleSupplier, ActorID: "S"}, f.issuer.issued[0])

	confirmed, err := f.svc.Confirm(context.Background(), TransitionInput{OrderID: placed.Order.ID, ActorID: "S"})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCompleted, confirmed.Order.Status)
	require.NotNil(t, confirmed.Order.CompletedAt)
	assert.Nil(t, confirmed.Order.CancelledAt)
	assert.Equal(t, "C", confirmed.NotifiedID)
	assert.Equal(t, 7, f.available(t, item.ID))
	assert.Equal(t, "C", f.notifier.last().recipient)
}

func TestScenarioPlaceThenCustomerCancel(t *testing.T) {
	f := newFixture(t)
	item := f.potion(t, 10)

	placed := f.place(t, "C", item.ID, 3)
	assert.Equal(t, 7, f.available(t, item.ID))

	cancelled, err := f.svc.Cancel(context.Background(), TransitionInput{OrderID: placed.Order.ID, ActorID: "C"})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Order.Status)
	require.NotNil(t, cancelled.Order.CancelledBy)
	assert.Equal(t, enums.ActorRoleCustomer, *cancelled.Order.CancelledBy)
	assert.Equal(t, enums.ActorRoleCustomer, cancelled.ActorRole)
	assert.Equal(t, "S", cancelled.NotifiedID)
	assert.Equal(t, 10, f.available(t, item.ID))
}

func TestScenarioInsufficientStock(t *testing.T) {
	f := newFixture(t)
	item := f.potion(t, 5)

	_, err := f.svc.Place(context.Background(), PlaceInput{
		CustomerID: "C", ItemID: item.ID, Quantity: 6, Location: "gate", DeliveryTime: "now",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.Equal(t, inventory.InsufficientStockDetails{Available: 5, Requested: 6}, pkgerrors.As(err).Details())
	assert.Equal(t, 5, f.available(t, item.ID))
	assert.Zero(t, f.countOrders(t))
	assert.Empty(t, f.notifier.sent)
}

func TestScenarioCancelAfterCompletion(t *testing.T) {
	f := newFixture(t)
	item := f.potion(t, 10)
	placed := f.place(t, "C", item.ID, 3)

	_, err := f.svc.Confirm(context.Background(), TransitionInput{OrderID: placed.Order.ID, ActorID: "S"})
	require.NoError(t, err)

	for _, actor := range []string{"C", "S"} {
		_, err = f.svc.Cancel(context.Background(), TransitionInput{OrderID: placed.Order.ID, ActorID: actor})
		require.Error(t, err)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	}
	assert.Equal(t, 7, f.available(t, item.ID))
}

func TestSelfOrderRejected(t *testing.T) {
	f := newFixture(t)
	item := f.potion(t, 10)

	_, err := f.svc.Place(context.Background(), PlaceInput{
		CustomerID: "S", ItemID: item.ID, Quantity: 1, Location: "gate", DeliveryTime: "now",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	assert.Equal(t, MessageSelfOrder, pkgerrors.As(err).Message())
	assert.Equal(t, 10, f.available(t, item.ID))
	assert.Zero(t, f.countOrders(t))
}

func TestPlaceUnknownOrInactiveItem(t *testing.T) {
	f := newFixture(t)
	item := f.potion(t, 10)
	ctx := context.Background()

	_, err := f.svc.Place(ctx, PlaceInput{CustomerID: "C", ItemID: 9999, Quantity: 1, Location: "gate", DeliveryTime: "now"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	require.NoError(t, f.conn.Model(&models.Supplier{}).Where("user_id = ?", "S").Update("active", false).Error)
	_, err = f.svc.Place(ctx, PlaceInput{CustomerID: "C", ItemID: item.ID, Quantity: 1, Location: "gate", DeliveryTime: "now"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestPlaceValidation(t *testing.T) {
	f := newFixture(t)
	item := f.potion(t, 10)
	long := string(bytes.Repeat([]byte("x"), maxFreeTextLen+1))

	cases := map[string]PlaceInput{
		"no customer":   {ItemID: item.ID, Quantity: 1, Location: "gate", DeliveryTime: "now"},
		"zero quantity": {CustomerID: "C", ItemID: item.ID, Quantity: 0, Location: "gate", DeliveryTime: "now"},
		"no location":   {CustomerID: "C", ItemID: item.ID, Quantity: 1, Location: "  ", DeliveryTime: "now"},
		"no time":       {CustomerID: "C", ItemID: item.ID, Quantity: 1, Location: "gate"},
		"long location": {CustomerID: "C", ItemID: item.ID, Quantity: 1, Location: long, DeliveryTime: "now"},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Place(context.Background(), input)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
		})
	}
	assert.Equal(t, 10, f.available(t, item.ID))
}

func TestPlaceRateLimited(t *testing.T) {
	f := newFixture(t)
	item := f.potion(t, 10)
	f.limiter.allowed = false

	_, err := f.svc.Place(context.Background(), PlaceInput{
		CustomerID: "C", ItemID: item.ID, Quantity: 1, Location: "gate", DeliveryTime: "now",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeRateLimit))
	assert.Equal(t, []string{"orders:place:C"}, f.limiter.scopes)
	assert.Equal(t, 10, f.available(t, item.ID))

	f.limiter.allowed = false
	f.limiter.err = errors.New("redis down")
	f.place(t, "C", item.ID, 1)
}

func TestPlaceReportsUndeliverableSupplier(t *testing.T) {
	f := newFixture(t)
	item := f.potion(t, 10)
	f.notifier.result = notifications.Undeliverable(enums.ReasonBlocked, errors.New("50007"))
	f.issuer.err = errors.New("redis down")

	placed := f.place(t, "C", item.ID, 2)
	assert.True(t, placed.Delivery.IsUndeliverable())
	assert.Equal(t, enums.ReasonBlocked, placed.Delivery.Reason)
	assert.Empty(t, f.notifier.last().msg.Buttons)

	var order models.Order
	require.NoError(t, f.conn.First(&order, placed.Order.ID).Error)
	assert.Equal(t, enums.OrderStatusPending, order.Status, "delivery failure never rolls back the order")
}

func TestTransitionAuthorization(t *testing.T) {
	f := newFixture(t)
	item := f.potion(t, 10)
	placed := f.place(t, "C", item.ID, 1)
	ctx := context.Background()

	_, err := f.svc.Confirm(ctx, TransitionInput{OrderID: placed.Order.ID, ActorID: "C"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden), "customers cannot confirm")

	_, err = f.svc.Cancel(ctx, TransitionInput{OrderID: placed.Order.ID, ActorID: "stranger"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.Cancel(ctx, TransitionInput{OrderID: placed.Order.ID, ActorID: "C", ExpectedRole: enums.ActorRoleSupplier})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden), "token role must match")

	_, err = f.svc.Confirm(ctx, TransitionInput{OrderID: 424242, ActorID: "S"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	res, err := f.svc.Cancel(ctx, TransitionInput{OrderID: placed.Order.ID, ActorID: "S", ExpectedRole: enums.ActorRoleSupplier})
	require.NoError(t, err)
	assert.Equal(t, "C", res.NotifiedID)
	assert.Equal(t, "Order #1 cancelled", f.notifier.last().msg.Title)
}

func TestCancelAfterItemRemoved(t *testing.T) {
	f := newFixture(t)
	item := f.potion(t, 10)
	placed := f.place(t, "C", item.ID, 4)
	ctx := context.Background()

	require.NoError(t, f.inventory.Remove(ctx, item.ID, "S"))

	res, err := f.svc.Cancel(ctx, TransitionInput{OrderID: placed.Order.ID, ActorID: "C"})
	require.NoError(t, err)
	assert.Nil(t, res.Order.ItemID)
	assert.Equal(t, "Potion", res.Order.ItemName)
}

func TestConcurrentPlacementsNeverOversell(t *testing.T) {
	f := newFixture(t)
	item := f.potion(t, 10)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for _, customer := range []string{"C1", "C2"} {
		wg.Add(1)
		go func(customer string) {
			defer wg.Done()
			_, err := f.svc.Place(ctx, PlaceInput{
				CustomerID: customer, ItemID: item.ID, Quantity: 6, Location: "gate", DeliveryTime: "now",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(customer)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, 4, f.available(t, item.ID))
	assert.Equal(t, int64(1), f.countOrders(t))
}

func TestConfirmAndCancelAreMutuallyExclusive(t *testing.T) {
	f := newFixture(t)
	item := f.potion(t, 10)
	placed := f.place(t, "C", item.ID, 3)
	ctx := context.Background()

	var (
		wg                    sync.WaitGroup
		confirmErr, cancelErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, confirmErr = f.svc.Confirm(ctx, TransitionInput{OrderID: placed.Order.ID, ActorID: "S"})
	}()
	go func() {
		defer wg.Done()
		_, cancelErr = f.svc.Cancel(ctx, TransitionInput{OrderID: placed.Order.ID, ActorID: "C"})
	}()
	wg.Wait()

	if confirmErr == nil {
		require.Error(t, cancelErr)
		assert.True(t, pkgerrors.IsCode(cancelErr, pkgerrors.CodeStateConflict))
		assert.Equal(t, 7, f.available(t, item.ID))
	} else {
		require.NoError(t, cancelErr)
		assert.True(t, pkgerrors.IsCode(confirmErr, pkgerrors.CodeStateConflict))
		assert.Equal(t, 10, f.available(t, item.ID))
	}
}

func TestPlaceCancelSequencesKeepStockNonNegative(t *testing.T) {
	f := newFixture(t)
	item := f.potion(t, 4)
	ctx := context.Background()

	var open []int64
	for i := 0; i < 6; i++ {
		res, err := f.svc.Place(ctx, PlaceInput{CustomerID: "C", ItemID: item.ID, Quantity: 2, Location: "gate", DeliveryTime: "now"})
		if err != nil {
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
		} else {
			open = append(open, res.Order.ID)
		}
		assert.GreaterOrEqual(t, f.available(t, item.ID), 0)
		if i%2 == 1 && len(open) > 0 {
			_, err := f.svc.Cancel(ctx, TransitionInput{OrderID: open[0], ActorID: "C"})
			require.NoError(t, err)
			open = open[1:]
		}
	}
	assert.Equal(t, 4-2*len(open), f.available(t, item.ID))
}

func TestListsAndSummary(t *testing.T) {
	f := newFixture(t)
	item := f.potion(t, 100)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 12; i++ {
		ids = append(ids, f.place(t, "C", item.ID, 1).Order.ID)
	}
	_, err := f.svc.Confirm(ctx, TransitionInput{OrderID: ids[0], ActorID: "S"})
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, TransitionInput{OrderID: ids[1], ActorID: "C"})
	require.NoError(t, err)

	mine, err := f.svc.ListForCustomer(ctx, "C")
	require.NoError(t, err)
	require.Len(t, mine, 10)
	assert.Equal(t, ids[11], mine[0].ID, "newest first")

	received, err := f.svc.ListForSupplier(ctx, "S")
	require.NoError(t, err)
	assert.Len(t, received, 12)

	_, err = f.svc.ListForSupplier(ctx, "C")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	summary, err := f.svc.SupplierSummary(ctx, "S")
	require.NoError(t, err)
	assert.Equal(t, SupplierSummary{Pending: 10, Completed: 1, Cancelled: 1, Earnings: 100}, *summary)

	order, err := f.svc.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCompleted, order.Status)
}

func TestOrderMetricsRecorded(t *testing.T) {
	f := newFixture(t)
	item := f.potion(t, 1)
	f.place(t, "C", item.ID, 1)
	_, err := f.svc.Place(context.Background(), PlaceInput{CustomerID: "C", ItemID: item.ID, Quantity: 1, Location: "g", DeliveryTime: "n"})
	require.Error(t, err)

	families, err := f.registry.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				values[mf.GetName()+"/"+l.GetValue()] = m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 1.0, values["orders_transitions_total/pending"])
	assert.Equal(t, 1.0, values["orders_rejections_total/insufficient_stock"])
}

func TestOrderTotalOverflow(t *testing.T) {
	_, ok := orderTotal(1<<62, 4)
	assert.False(t, ok)
	total, ok := orderTotal(100, 3)
	assert.True(t, ok)
	assert.Equal(t, int64(300), total)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(Deps{})
	require.Error(t, err)
}
