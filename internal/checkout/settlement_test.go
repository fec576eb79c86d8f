package checkout

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeProduct struct {
	id     int64
	name   string
	price  decimal.Decimal
	stock  int
	active bool
}

type fakeOrder struct {
	id     string
	userID string
	actor  string
	paid   bool
}

type fakeOrderItem struct {
	orderID   string
	productID int64
	quantity  int
	unitPrice decimal.Decimal
}

type fakeState struct {
	products map[int64]*fakeProduct
	orders   []fakeOrder
	items    []fakeOrderItem
	carts    map[string][]ItemRequest
	orderSeq int
}

func (s *fakeState) clone() *fakeState {
	c := &fakeState{
		products: make(map[int64]*fakeProduct, len(s.products)),
		orders:   append([]fakeOrder(nil), s.orders...),
		items:    append([]fakeOrderItem(nil), s.items...),
		carts:    make(map[string][]ItemRequest, len(s.carts)),
		orderSeq: s.orderSeq,
	}
	for id, p := range s.products {
		cp := *p
		c.products[id] = &cp
	}
	for u, items := range s.carts {
		c.carts[u] = append([]ItemRequest(nil), items...)
	}
	return c
}

// fakeStore commits the transactional copy only when fn succeeds, so a
// failed settlement observably leaves nothing behind.
type fakeStore struct {
	state         *fakeState
	txCount       int
	afterSnapshot func(st *fakeState) // simulates a racing commit
}

func newFakeStore(products ...fakeProduct) *fakeStore {
	st := &fakeState{
		products: map[int64]*fakeProduct{},
		carts:    map[string][]ItemRequest{},
	}
	for _, p := range products {
		cp := p
		st.products[p.id] = &cp
	}
	return &fakeStore{state: st}
}

func (f *fakeStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx StoreTx) error) error {
	f.txCount++
	work := f.state.clone()
	if err := fn(ctx, &fakeTx{state: work, store: f}); err != nil {
		return err
	}
	f.state = work
	return nil
}

type fakeTx struct {
	state *fakeState
	store *fakeStore
}

func (t *fakeTx) ResolveProducts(ctx context.Context, refs []ItemRef) ([]ProductSnapshot, error) {
	out := make([]ProductSnapshot, 0, len(refs))
	for _, ref := range refs {
		var found *fakeProduct
		if ref.ProductID != 0 {
			found = t.state.products[ref.ProductID]
		} else {
			for _, p := range t.state.products {
				if strings.EqualFold(p.name, ref.Name) && (found == nil || p.id < found.id) {
					found = p
				}
			}
		}
		if found == nil {
			return nil, fmt.Errorf("%w: %s", ErrProductUnavailable, ref.Name)
		}
		out = append(out, ProductSnapshot{
			ID:       found.id,
			Name:     found.name,
			Price:    found.price,
			Stock:    found.stock,
			IsActive: found.active,
		})
	}
	if t.store.afterSnapshot != nil {
		t.store.afterSnapshot(t.state)
		t.store.afterSnapshot = nil
	}
	return out, nil
}

func (t *fakeTx) CreateOrder(ctx context.Context, userID, actor string, paid bool) (string, error) {
	t.state.orderSeq++
	id := fmt.Sprintf("order-%d", t.state.orderSeq)
	t.state.orders = append(t.state.orders, fakeOrder{id: id, userID: userID, actor: actor, paid: paid})
	return id, nil
}

func (t *fakeTx) AddOrderItem(ctx context.Context, orderID string, productID int64, quantity int, unitPrice decimal.Decimal) error {
	t.state.items = append(t.state.items, fakeOrderItem{
		orderID: orderID, productID: productID, quantity: quantity, unitPrice: unitPrice,
	})
	return nil
}

func (t *fakeTx) DecrementStock(ctx context.Context, productID int64, qty int) (int, error) {
	p, ok := t.state.products[productID]
	if !ok || p.stock < qty {
		return 0, ErrStockConflict
	}
	p.stock -= qty
	return p.stock, nil
}

func (t *fakeTx) ProductStock(ctx context.Context, productID int64) (int, error) {
	p, ok := t.state.products[productID]
	if !ok {
		return 0, fmt.Errorf("no product %d", productID)
	}
	return p.stock, nil
}

func (t *fakeTx) DeactivateProduct(ctx context.Context, productID int64) error {
	p, ok := t.state.products[productID]
	if !ok {
		return fmt.Errorf("no product %d", productID)
	}
	p.active = false
	return nil
}

func (t *fakeTx) CartItems(ctx context.Context, userID string) ([]ItemRequest, error) {
	return t.state.carts[userID], nil
}

func (t *fakeTx) ClearCart(ctx context.Context, userID string) error {
	delete(t.state.carts, userID)
	return nil
}

var buyer = User{ID: "u1", Name: "Maya"}

func requireReceiptBalanced(t *testing.T, rec *Receipt) {
	t.Helper()
	charged := decimal.Zero
	for _, it := range rec.Items {
		charged = charged.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	require.True(t, charged.Add(rec.Change).Equal(rec.Paid),
		"charged %s + change %s != paid %s", charged, rec.Change, rec.Paid)
}

func TestSettlePurchaseFullSuccess(t *testing.T) {
	store := newFakeStore(fakeProduct{id: 1, name: "Coffee", price: money("10.00"), stock: 5, active: true})
	c := NewCoordinator(store)

	rec, err := c.SettlePurchase(context.Background(), buyer,
		[]ItemRequest{{Ref: ItemRef{ProductID: 1}, Quantity: 3}}, money("30.00"))
	require.NoError(t, err)

	require.Equal(t, MessageFull, rec.Message)
	require.False(t, rec.Partial)
	require.Empty(t, rec.Note)
	require.True(t, rec.Change.Equal(money("0.00")))
	requireReceiptBalanced(t, rec)

	require.Len(t, store.state.orders, 1)
	require.Equal(t, "u1", store.state.orders[0].userID)
	require.Equal(t, "Maya", store.state.orders[0].actor)
	require.True(t, store.state.orders[0].paid)
	require.Len(t, store.state.items, 1)
	require.Equal(t, 3, store.state.items[0].quantity)
	require.Equal(t, 2, store.state.products[1].stock)
	require.True(t, store.state.products[1].active)
}

func TestSettlePurchaseDeactivatesAtZeroStock(t *testing.T) {
	store := newFakeStore(fakeProduct{id: 1, name: "Coffee", price: money("10.00"), stock: 3, active: true})
	c := NewCoordinator(store)

	rec, err := c.SettlePurchase(context.Background(), buyer,
		[]ItemRequest{{Ref: ItemRef{ProductID: 1}, Quantity: 3}}, money("30.00"))
	require.NoError(t, err)

	require.Equal(t, 0, store.state.products[1].stock)
	require.False(t, store.state.products[1].active)
	require.Len(t, rec.SoldOut, 1)
	require.Equal(t, int64(1), rec.SoldOut[0].ProductID)
}

func TestSettlePurchasePartialByStockAndBudget(t *testing.T) {
	store := newFakeStore(
		fakeProduct{id: 1, name: "P1", price: money("10.00"), stock: 2, active: true},
		fakeProduct{id: 2, name: "P2", price: money("5.00"), stock: 10, active: true},
	)
	c := NewCoordinator(store)

	// P1 clamped to 2 (cost 20), then 5.00 left affords one P2
	rec, err := c.SettlePurchase(context.Background(), buyer, []ItemRequest{
		{Ref: ItemRef{ProductID: 1}, Quantity: 5},
		{Ref: ItemRef{ProductID: 2}, Quantity: 3},
	}, money("25.00"))
	require.NoError(t, err)

	require.Equal(t, MessagePartial, rec.Message)
	require.True(t, rec.Partial)
	require.NotEmpty(t, rec.Note)
	require.Len(t, rec.Items, 2)
	require.Equal(t, 2, rec.Items[0].Quantity)
	require.Equal(t, 1, rec.Items[1].Quantity)
	requireReceiptBalanced(t, rec)

	require.Equal(t, 0, store.state.products[1].stock)
	require.False(t, store.state.products[1].active)
	require.Equal(t, 9, store.state.products[2].stock)
}

func TestSettlePurchaseEmptyBasketTouchesNothing(t *testing.T) {
	store := newFakeStore(fakeProduct{id: 1, name: "Coffee", price: money("10.00"), stock: 5, active: true})
	c := NewCoordinator(store)

	_, err := c.SettlePurchase(context.Background(), buyer, nil, money("30.00"))
	require.ErrorIs(t, err, ErrEmptyBasket)
	require.Zero(t, store.txCount)
	require.Empty(t, store.state.orders)
}

func TestSettlePurchaseUnauthenticatedActor(t *testing.T) {
	store := newFakeStore(fakeProduct{id: 1, name: "Coffee", price: money("10.00"), stock: 5, active: true})
	c := NewCoordinator(store)

	_, err := c.SettlePurchase(context.Background(), User{ID: "u1"},
		[]ItemRequest{{Ref: ItemRef{ProductID: 1}, Quantity: 1}}, money("30.00"))
	require.ErrorIs(t, err, ErrUnauthenticatedActor)
	require.Zero(t, store.txCount)
}

func TestSettlePurchaseUnknownProductRollsBack(t *testing.T) {
	store := newFakeStore(fakeProduct{id: 1, name: "Coffee", price: money("10.00"), stock: 5, active: true})
	c := NewCoordinator(store)

	_, err := c.SettlePurchase(context.Background(), buyer, []ItemRequest{
		{Ref: ItemRef{ProductID: 1}, Quantity: 1},
		{Ref: ItemRef{Name: "Ghost"}, Quantity: 1},
	}, money("100.00"))
	require.ErrorIs(t, err, ErrProductUnavailable)

	require.Empty(t, store.state.orders)
	require.Empty(t, store.state.items)
	require.Equal(t, 5, store.state.products[1].stock)
}

func TestSettlePurchaseNothingFulfillable(t *testing.T) {
	store := newFakeStore(fakeProduct{id: 1, name: "Coffee", price: money("10.00"), stock: 5, active: true})
	c := NewCoordinator(store)

	_, err := c.SettlePurchase(context.Background(), buyer,
		[]ItemRequest{{Ref: ItemRef{ProductID: 1}, Quantity: 1}}, money("4.00"))
	require.ErrorIs(t, err, ErrNothingFulfillable)

	// no empty paid order may survive the rollback
	require.Empty(t, store.state.orders)
	require.Equal(t, 5, store.state.products[1].stock)
}

func TestSettlePurchaseResolvesByNameCaseInsensitive(t *testing.T) {
	store := newFakeStore(fakeProduct{id: 7, name: "Coffee", price: money("10.00"), stock: 5, active: true})
	c := NewCoordinator(store)

	rec, err := c.SettlePurchase(context.Background(), buyer,
		[]ItemRequest{{Ref: ItemRef{Name: "cOfFeE"}, Quantity: 1}}, money("10.00"))
	require.NoError(t, err)
	require.Equal(t, int64(7), rec.Items[0].ProductID)
}

func TestSettlePurchaseDegradesOnStockConflict(t *testing.T) {
	store := newFakeStore(fakeProduct{id: 1, name: "Coffee", price: money("10.00"), stock: 5, active: true})
	// a racing settlement takes 3 units between snapshot and persist
	store.afterSnapshot = func(st *fakeState) { st.products[1].stock = 2 }
	c := NewCoordinator(store)

	rec, err := c.SettlePurchase(context.Background(), buyer,
		[]ItemRequest{{Ref: ItemRef{ProductID: 1}, Quantity: 5}}, money("100.00"))
	require.NoError(t, err)

	require.True(t, rec.Partial)
	require.Len(t, rec.Items, 1)
	require.Equal(t, 2, rec.Items[0].Quantity)
	require.Contains(t, rec.Note, "2")
	requireReceiptBalanced(t, rec)

	require.Equal(t, 0, store.state.products[1].stock)
	require.False(t, store.state.products[1].active)
}

func TestSettlePurchaseConflictLeavesNothingFulfillable(t *testing.T) {
	store := newFakeStore(fakeProduct{id: 1, name: "Coffee", price: money("10.00"), stock: 5, active: true})
	store.afterSnapshot = func(st *fakeState) { st.products[1].stock = 0 }
	c := NewCoordinator(store)

	_, err := c.SettlePurchase(context.Background(), buyer,
		[]ItemRequest{{Ref: ItemRef{ProductID: 1}, Quantity: 2}}, money("100.00"))
	require.ErrorIs(t, err, ErrNothingFulfillable)
	require.Empty(t, store.state.orders)
}

func TestSettleCart(t *testing.T) {
	store := newFakeStore(
		fakeProduct{id: 1, name: "P1", price: money("10.00"), stock: 10, active: true},
		fakeProduct{id: 2, name: "P2", price: money("5.00"), stock: 10, active: true},
	)
	store.state.carts["u1"] = []ItemRequest{
		{Ref: ItemRef{ProductID: 1}, Quantity: 2},
		{Ref: ItemRef{ProductID: 2}, Quantity: 2},
	}
	c := NewCoordinator(store)

	rec, err := c.SettleCart(context.Background(), buyer, money("30.00"))
	require.NoError(t, err)

	require.Equal(t, MessageFull, rec.Message)
	require.Len(t, rec.Items, 2)
	require.True(t, rec.Change.Equal(money("0.00")))
	requireReceiptBalanced(t, rec)

	require.Empty(t, store.state.carts["u1"], "cart must be cleared on success")
	require.Equal(t, 8, store.state.products[1].stock)
	require.Equal(t, 8, store.state.products[2].stock)
}

func TestSettleCartEmpty(t *testing.T) {
	store := newFakeStore(fakeProduct{id: 1, name: "P1", price: money("10.00"), stock: 10, active: true})
	c := NewCoordinator(store)

	_, err := c.SettleCart(context.Background(), buyer, money("30.00"))
	require.ErrorIs(t, err, ErrEmptyBasket)
	require.Empty(t, store.state.orders)
}

func TestSettleCartKeptOnFailure(t *testing.T) {
	store := newFakeStore(fakeProduct{id: 1, name: "P1", price: money("10.00"), stock: 10, active: true})
	store.state.carts["u1"] = []ItemRequest{{Ref: ItemRef{ProductID: 1}, Quantity: 1}}
	c := NewCoordinator(store)

	_, err := c.SettleCart(context.Background(), buyer, money("1.00"))
	require.ErrorIs(t, err, ErrNothingFulfillable)
	require.Len(t, store.state.carts["u1"], 1, "cart survives a failed settlement")
}
