package usecase_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/external"
	repo "storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// =====================
// TxManager / TxRepos mocks
// =====================

// TxManagerMock は WithinTx の中で渡す repos を固定して unit テストを回す
type TxManagerMock struct {
	mock.Mock
	Repos repo.TxRepos
}

func (m *TxManagerMock) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	// 呼ばれた事実だけ記録（ctxの具体値は問わない）
	m.Called(ctx)
	return fn(m.Repos)
}

type TxReposMock struct {
	files      repo.FileRepository
	carts      repo.CartRepository
	cartItems  repo.CartItemRepository
	orders     repo.OrderRepository
	orderItems repo.OrderItemRepository
}

func (r *TxReposMock) Files() repo.FileRepository           { return r.files }
func (r *TxReposMock) Carts() repo.CartRepository           { return r.carts }
func (r *TxReposMock) CartItems() repo.CartItemRepository   { return r.cartItems }
func (r *TxReposMock) Orders() repo.OrderRepository         { return r.orders }
func (r *TxReposMock) OrderItems() repo.OrderItemRepository { return r.orderItems }

// =====================
// Repository mocks
// =====================

type FileRepoMock struct{ mock.Mock }

func (m *FileRepoMock) Create(ctx context.Context, f model.File) error {
	args := m.Called(ctx, f)
	return args.Error(0)
}

func (m *FileRepoMock) FindByID(ctx context.Context, id string) (model.File, error) {
	args := m.Called(ctx, id)
	f, _ := args.Get(0).(model.File)
	return f, args.Error(1)
}

func (m *FileRepoMock) FindByIDs(ctx context.Context, ids []string) ([]model.File, error) {
	args := m.Called(ctx, ids)
	files, _ := args.Get(0).([]model.File)
	return files, args.Error(1)
}

func (m *FileRepoMock) ListUnsliced(ctx context.Context, limit int) ([]model.File, error) {
	panic("not used in usecase tests")
}

func (m *FileRepoMock) ListExpired(ctx context.Context, now time.Time, limit int) ([]model.File, error) {
	args := m.Called(ctx, now, limit)
	files, _ := args.Get(0).([]model.File)
	return files, args.Error(1)
}

func (m *FileRepoMock) SetJob(ctx context.Context, id string, attempt int, jobID string) error {
	panic("not used in usecase tests")
}

func (m *FileRepoMock) ResetForReslice(ctx context.Context, id string, now time.Time) (model.File, error) {
	args := m.Called(ctx, id, now)
	f, _ := args.Get(0).(model.File)
	return f, args.Error(1)
}

func (m *FileRepoMock) Resolve(ctx context.Context, id string, attempt int, state model.FileState, now time.Time) (bool, error) {
	panic("not used in usecase tests")
}

func (m *FileRepoMock) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type CartRepoMock struct{ mock.Mock }

func (m *CartRepoMock) GetOrCreateActiveByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	args := m.Called(ctx, userID)
	c, _ := args.Get(0).(model.Cart)
	return c, args.Error(1)
}

func (m *CartRepoMock) FindByID(ctx context.Context, cartID int64) (model.Cart, error) {
	args := m.Called(ctx, cartID)
	c, _ := args.Get(0).(model.Cart)
	return c, args.Error(1)
}

func (m *CartRepoMock) FindByIDForUpdate(ctx context.Context, cartID int64) (model.Cart, error) {
	args := m.Called(ctx, cartID)
	c, _ := args.Get(0).(model.Cart)
	return c, args.Error(1)
}

func (m *CartRepoMock) UpdateSelections(ctx context.Context, cart model.Cart) error {
	args := m.Called(ctx, cart)
	return args.Error(0)
}

func (m *CartRepoMock) SetLocked(ctx context.Context, cartID int64, locked bool) error {
	args := m.Called(ctx, cartID, locked)
	return args.Error(0)
}

func (m *CartRepoMock) UpdateStatus(ctx context.Context, cartID int64, status model.CartStatus) error {
	args := m.Called(ctx, cartID, status)
	return args.Error(0)
}

type CartItemRepoMock struct{ mock.Mock }

func (m *CartItemRepoMock) ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error) {
	args := m.Called(ctx, cartID)
	items, _ := args.Get(0).([]model.CartItem)
	return items, args.Error(1)
}

func (m *CartItemRepoMock) FindByCartAndFile(ctx context.Context, cartID int64, fileID string) (model.CartItem, error) {
	args := m.Called(ctx, cartID, fileID)
	it, _ := args.Get(0).(model.CartItem)
	return it, args.Error(1)
}

func (m *CartItemRepoMock) UpsertByCartAndFile(ctx context.Context, item model.CartItem) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *CartItemRepoMock) Update(ctx context.Context, item model.CartItem) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *CartItemRepoMock) DeleteByCartAndFile(ctx context.Context, cartID int64, fileID string) error {
	args := m.Called(ctx, cartID, fileID)
	return args.Error(0)
}

func (m *CartItemRepoMock) DeleteByFileIDFromUnlockedCarts(ctx context.Context, fileID string) error {
	args := m.Called(ctx, fileID)
	return args.Error(0)
}

func (m *CartItemRepoMock) ListCartIDsByFileID(ctx context.Context, fileID string) ([]int64, error) {
	args := m.Called(ctx, fileID)
	ids, _ := args.Get(0).([]int64)
	return ids, args.Error(1)
}

type CatalogRepoMock struct{ mock.Mock }

func (m *CatalogRepoMock) ListAddons(ctx context.Context) ([]model.Addon, error) {
	args := m.Called(ctx)
	items, _ := args.Get(0).([]model.Addon)
	return items, args.Error(1)
}

func (m *CatalogRepoMock) ListShippingOptions(ctx context.Context) ([]model.ShippingOption, error) {
	args := m.Called(ctx)
	items, _ := args.Get(0).([]model.ShippingOption)
	return items, args.Error(1)
}

func (m *CatalogRepoMock) ListMaterials(ctx context.Context) ([]model.Material, error) {
	args := m.Called(ctx)
	items, _ := args.Get(0).([]model.Material)
	return items, args.Error(1)
}

func (m *CatalogRepoMock) FindMaterial(ctx context.Context, id string) (model.Material, error) {
	args := m.Called(ctx, id)
	mat, _ := args.Get(0).(model.Material)
	return mat, args.Error(1)
}

func (m *CatalogRepoMock) FindShippingOption(ctx context.Context, id string) (model.ShippingOption, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(model.ShippingOption)
	return s, args.Error(1)
}

type OrderRepoMock struct{ mock.Mock }

func (m *OrderRepoMock) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	args := m.Called(ctx, orderID)
	o, _ := args.Get(0).(model.Order)
	return o, args.Error(1)
}

func (m *OrderRepoMock) ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error) {
	args := m.Called(ctx, userID, page, limit)
	orders, _ := args.Get(0).([]model.Order)
	return orders, args.Get(1).(int64), args.Error(2)
}

func (m *OrderRepoMock) Create(ctx context.Context, order model.Order) (int64, error) {
	args := m.Called(ctx, order)
	return args.Get(0).(int64), args.Error(1)
}

func (m *OrderRepoMock) DeleteAbandoned(ctx context.Context, orderID int64) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}

func (m *OrderRepoMock) ListAbandoned(ctx context.Context, createdBefore time.Time, limit int) ([]model.Order, error) {
	args := m.Called(ctx, createdBefore, limit)
	orders, _ := args.Get(0).([]model.Order)
	return orders, args.Error(1)
}

func (m *OrderRepoMock) UpdateOrderStatus(ctx context.Context, orderID int64, status string, updatedAt time.Time) error {
	args := m.Called(ctx, orderID, status, updatedAt)
	return args.Error(0)
}

func (m *OrderRepoMock) UpdateShippingAddress(ctx context.Context, orderID int64, addr model.ShippingAddress, updatedAt time.Time) error {
	args := m.Called(ctx, orderID, addr, updatedAt)
	return args.Error(0)
}

func (m *OrderRepoMock) SetPaymentSession(ctx context.Context, orderID int64, sessionID string, url string) error {
	args := m.Called(ctx, orderID, sessionID, url)
	return args.Error(0)
}

func (m *OrderRepoMock) UpdatePaymentStatus(ctx context.Context, orderID int64, status model.PaymentStatus, updatedAt time.Time) error {
	args := m.Called(ctx, orderID, status, updatedAt)
	return args.Error(0)
}

func (m *OrderRepoMock) FindByIdempotencyKey(ctx context.Context, userID int64, key string) (model.Order, bool, error) {
	args := m.Called(ctx, userID, key)
	o, _ := args.Get(0).(model.Order)
	return o, args.Bool(1), args.Error(2)
}

func (m *OrderRepoMock) FindByPaymentSession(ctx context.Context, sessionID string) (model.Order, error) {
	args := m.Called(ctx, sessionID)
	o, _ := args.Get(0).(model.Order)
	return o, args.Error(1)
}

func (m *OrderRepoMock) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	args := m.Called(ctx, f)
	orders, _ := args.Get(0).([]model.Order)
	return orders, args.Get(1).(int64), args.Error(2)
}

type OrderItemRepoMock struct{ mock.Mock }

func (m *OrderItemRepoMock) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	args := m.Called(ctx, orderID, items)
	return args.Error(0)
}

func (m *OrderItemRepoMock) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	args := m.Called(ctx, orderID)
	items, _ := args.Get(0).([]model.OrderItem)
	return items, args.Error(1)
}

func (m *OrderItemRepoMock) DeleteByOrderID(ctx context.Context, orderID int64) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}

type AuditRepoMock struct{ mock.Mock }

func (m *AuditRepoMock) Create(ctx context.Context, log model.AuditLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *AuditRepoMock) List(ctx context.Context, filter repo.AuditLogFilter) ([]model.AuditLog, error) {
	args := m.Called(ctx, filter)
	logs, _ := args.Get(0).([]model.AuditLog)
	return logs, args.Error(1)
}

type QuoteRepoMock struct{ mock.Mock }

func (m *QuoteRepoMock) Create(ctx context.Context, q model.Quote) (int64, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(int64), args.Error(1)
}

func (m *QuoteRepoMock) FindByID(ctx context.Context, quoteID int64) (model.Quote, error) {
	args := m.Called(ctx, quoteID)
	q, _ := args.Get(0).(model.Quote)
	return q, args.Error(1)
}

// =====================
// External mocks
// =====================

type BlobStoreMock struct{ mock.Mock }

func (m *BlobStoreMock) Store(ctx context.Context, key string, contentType string, data []byte) (external.BlobRef, error) {
	args := m.Called(ctx, key, contentType, data)
	ref, _ := args.Get(0).(external.BlobRef)
	return ref, args.Error(1)
}

func (m *BlobStoreMock) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type PaymentServiceMock struct{ mock.Mock }

func (m *PaymentServiceMock) CreateSession(ctx context.Context, req external.SessionRequest) (external.PaymentSession, error) {
	args := m.Called(ctx, req)
	s, _ := args.Get(0).(external.PaymentSession)
	return s, args.Error(1)
}

func (m *PaymentServiceMock) ExpireSession(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *PaymentServiceMock) CreateCatalogEntry(ctx context.Context, name string) (string, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Error(1)
}

func (m *PaymentServiceMock) DeleteCatalogEntry(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type DispatcherMock struct{ mock.Mock }

func (m *DispatcherMock) Dispatch(ctx context.Context, f model.File) error {
	args := m.Called(ctx, f)
	return args.Error(0)
}

type WatcherMock struct{ mock.Mock }

func (m *WatcherMock) Watch(id string)   { m.Called(id) }
func (m *WatcherMock) Unwatch(id string) { m.Called(id) }

// =====================
// Fakes
// =====================

// publisherSpy は通知を記録するだけ
type publisherSpy struct {
	mu     sync.Mutex
	events []usecase.CartEvent
}

func (p *publisherSpy) Publish(cartID int64, ev usecase.CartEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ev.CartID = cartID
	p.events = append(p.events, ev)
}

func (p *publisherSpy) types() []usecase.CartEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]usecase.CartEventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fixedIDs struct{ id string }

func (g fixedIDs) NewID() string { return g.id }

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// =====================
// Helper: error contains（HTTPErrorの実装詳細に依存しない）
// =====================

func assertErrContains(t *testing.T, err error, wantSubstr string) {
	t.Helper()
	if assert.Error(t, err) {
		assert.True(t, strings.Contains(err.Error(), wantSubstr), "err=%q want contains %q", err.Error(), wantSubstr)
	}
}

func assertStatus(t *testing.T, err error, want int) {
	t.Helper()
	he, ok := usecase.AsHTTPError(err)
	if assert.True(t, ok, "want HTTPError, got %v", err) {
		assert.Equal(t, want, he.Status)
	}
}

// slicedFile は質量付きのsuccessファイルを作る
func slicedFile(id string, userID int64, mass float64) model.File {
	f := model.File{ID: id, UserID: userID, Name: id + ".stl", CatalogEntryID: "cat-" + id}
	f.ApplyState(model.Sliced{MassGrams: mass, Dimensions: model.Dimensions{X: 10, Y: 10, Z: 10}}, testNow)
	return f
}

func unslicedFile(id string, userID int64) model.File {
	f := model.File{ID: id, UserID: userID, Name: id + ".stl"}
	f.ApplyState(model.Unsliced{}, testNow)
	return f
}

func failedFile(id string, userID int64, detail string) model.File {
	f := model.File{ID: id, UserID: userID, Name: id + ".stl"}
	f.ApplyState(model.Failed{Detail: detail}, testNow)
	return f
}
