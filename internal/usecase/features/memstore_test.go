package features

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/external"
	repo "storefront/internal/repository"
	"storefront/internal/usecase"
)

// memStore はシナリオ用のインメモリDB（ロールバックはしない）
type memStore struct {
	mu sync.Mutex

	files      map[string]model.File
	deleted    map[string]bool
	carts      map[int64]model.Cart
	cartItems  map[int64][]model.CartItem
	orders     map[int64]model.Order
	orderItems map[int64][]model.OrderItem
	audit      []model.AuditLog

	materials []model.Material
	addons    []model.Addon
	shipping  []model.ShippingOption

	nextID int64
}

func newMemStore() *memStore {
	return &memStore{
		files:      map[string]model.File{},
		deleted:    map[string]bool{},
		carts:      map[int64]model.Cart{},
		cartItems:  map[int64][]model.CartItem{},
		orders:     map[int64]model.Order{},
		orderItems: map[int64][]model.OrderItem{},
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

// =====================
// files
// =====================

type memFiles struct{ s *memStore }

func (r memFiles) Create(ctx context.Context, f model.File) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.files[f.ID] = f
	return nil
}

func (r memFiles) FindByID(ctx context.Context, id string) (model.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.files[id]
	if !ok || r.s.deleted[id] {
		return model.File{}, repo.ErrNotFound
	}
	return f, nil
}

func (r memFiles) FindByIDs(ctx context.Context, ids []string) ([]model.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.File{}
	for _, id := range ids {
		if f, ok := r.s.files[id]; ok && !r.s.deleted[id] {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r memFiles) ListUnsliced(ctx context.Context, limit int) ([]model.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.File{}
	for id, f := range r.s.files {
		if !r.s.deleted[id] && f.Status == model.FileStatusUnsliced && len(out) < limit {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r memFiles) ListExpired(ctx context.Context, now time.Time, limit int) ([]model.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.File{}
	for id, f := range r.s.files {
		if !r.s.deleted[id] && !f.DeleteAfter.After(now) && len(out) < limit {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r memFiles) SetJob(ctx context.Context, id string, attempt int, jobID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.files[id]
	if ok && f.SliceAttempt == attempt && f.Status == model.FileStatusUnsliced {
		f.SliceJobID = jobID
		r.s.files[id] = f
	}
	return nil
}

func (r memFiles) ResetForReslice(ctx context.Context, id string, now time.Time) (model.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.files[id]
	if !ok || r.s.deleted[id] {
		return model.File{}, repo.ErrNotFound
	}
	f.ApplyState(model.Unsliced{}, now)
	f.SliceAttempt++
	f.SliceJobID = ""
	f.UpdatedAt = now
	r.s.files[id] = f
	return f, nil
}

func (r memFiles) Resolve(ctx context.Context, id string, attempt int, state model.FileState, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.files[id]
	if !ok || r.s.deleted[id] || f.Status != model.FileStatusUnsliced || f.SliceAttempt != attempt {
		return false, nil
	}
	f.ApplyState(state, now)
	f.UpdatedAt = now
	r.s.files[id] = f
	return true, nil
}

func (r memFiles) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.files[id]; !ok || r.s.deleted[id] {
		return repo.ErrNotFound
	}
	r.s.deleted[id] = true
	return nil
}

// =====================
// carts / cart items
// =====================

type memCarts struct{ s *memStore }

func (r memCarts) GetOrCreateActiveByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.carts {
		if c.UserID == userID && c.Status == model.CartStatusActive {
			return c, nil
		}
	}
	c := model.Cart{ID: r.s.id(), UserID: userID, Status: model.CartStatusActive, AddonIDs: []string{}}
	r.s.carts[c.ID] = c
	return c, nil
}

func (r memCarts) FindByID(ctx context.Context, cartID int64) (model.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.carts[cartID]
	if !ok {
		return model.Cart{}, repo.ErrNotFound
	}
	return c, nil
}

func (r memCarts) FindByIDForUpdate(ctx context.Context, cartID int64) (model.Cart, error) {
	return r.FindByID(ctx, cartID)
}

func (r memCarts) UpdateSelections(ctx context.Context, cart model.Cart) error {
	return r.update(cart.ID, func(c *model.Cart) {
		c.AddonIDs = append([]string{}, cart.AddonIDs...)
		c.ShippingOptionID = cart.ShippingOptionID
	})
}

func (r memCarts) SetLocked(ctx context.Context, cartID int64, locked bool) error {
	return r.update(cartID, func(c *model.Cart) { c.Locked = locked })
}

func (r memCarts) UpdateStatus(ctx context.Context, cartID int64, status model.CartStatus) error {
	return r.update(cartID, func(c *model.Cart) { c.Status = status })
}

func (r memCarts) update(cartID int64, fn func(c *model.Cart)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.carts[cartID]
	if !ok {
		return repo.ErrNotFound
	}
	fn(&c)
	r.s.carts[cartID] = c
	return nil
}

type memCartItems struct{ s *memStore }

func (r memCartItems) ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]model.CartItem{}, r.s.cartItems[cartID]...), nil
}

func (r memCartItems) FindByCartAndFile(ctx context.Context, cartID int64, fileID string) (model.CartItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, it := range r.s.cartItems[cartID] {
		if it.FileID == fileID {
			return it, nil
		}
	}
	return model.CartItem{}, repo.ErrNotFound
}

func (r memCartItems) UpsertByCartAndFile(ctx context.Context, item model.CartItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	items := r.s.cartItems[item.CartID]
	for i := range items {
		if items[i].FileID == item.FileID {
			items[i].Quantity += item.Quantity
			items[i].Quality, items[i].MaterialID = item.Quality, item.MaterialID
			return nil
		}
	}
	item.ID = r.s.id()
	r.s.cartItems[item.CartID] = append(items, item)
	return nil
}

func (r memCartItems) Update(ctx context.Context, item model.CartItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	items := r.s.cartItems[item.CartID]
	for i := range items {
		if items[i].FileID == item.FileID {
			items[i].Quantity, items[i].Quality, items[i].MaterialID = item.Quantity, item.Quality, item.MaterialID
			return nil
		}
	}
	return repo.ErrNotFound
}

func (r memCartItems) DeleteByCartAndFile(ctx context.Context, cartID int64, fileID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	items := r.s.cartItems[cartID]
	for i := range items {
		if items[i].FileID == fileID {
			r.s.cartItems[cartID] = append(items[:i:i], items[i+1:]...)
			return nil
		}
	}
	return repo.ErrNotFound
}

func (r memCartItems) DeleteByFileIDFromUnlockedCarts(ctx context.Context, fileID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for cartID, items := range r.s.cartItems {
		if r.s.carts[cartID].Locked {
			continue
		}
		kept := []model.CartItem{}
		for _, it := range items {
			if it.FileID != fileID {
				kept = append(kept, it)
			}
		}
		r.s.cartItems[cartID] = kept
	}
	return nil
}

func (r memCartItems) ListCartIDsByFileID(ctx context.Context, fileID string) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := []int64{}
	for cartID, items := range r.s.cartItems {
		for _, it := range items {
			if it.FileID == fileID {
				ids = append(ids, cartID)
				break
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// =====================
// catalog
// =====================

type memCatalog struct{ s *memStore }

func (r memCatalog) ListAddons(ctx context.Context) ([]model.Addon, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]model.Addon{}, r.s.addons...), nil
}

func (r memCatalog) ListShippingOptions(ctx context.Context) ([]model.ShippingOption, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]model.ShippingOption{}, r.s.shipping...), nil
}

func (r memCatalog) ListMaterials(ctx context.Context) ([]model.Material, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]model.Material{}, r.s.materials...), nil
}

func (r memCatalog) FindMaterial(ctx context.Context, id string) (model.Material, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.materials {
		if m.ID == id {
			return m, nil
		}
	}
	return model.Material{}, repo.ErrNotFound
}

func (r memCatalog) FindShippingOption(ctx context.Context, id string) (model.ShippingOption, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.shipping {
		if o.ID == id {
			return o, nil
		}
	}
	return model.ShippingOption{}, repo.ErrNotFound
}

// =====================
// orders / audit
// =====================

type memOrders struct{ s *memStore }

func (r memOrders) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[orderID]
	if !ok {
		return model.Order{}, repo.ErrNotFound
	}
	return o, nil
}

func (r memOrders) ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error) {
	all, _, _ := r.ListAdmin(ctx, repo.AdminOrderListFilter{UserID: &userID})
	total := int64(len(all))
	start := (page - 1) * limit
	if start >= len(all) {
		return []model.Order{}, total, nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (r memOrders) Create(ctx context.Context, order model.Order) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.orders {
		if o.IdempotencyKey == order.IdempotencyKey {
			return 0, repo.ErrConflict
		}
	}
	order.ID = r.s.id()
	r.s.orders[order.ID] = order
	return order.ID, nil
}

func (r memOrders) DeleteAbandoned(ctx context.Context, orderID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[orderID]
	if !ok || o.PaymentStatus != model.PaymentStatusUnpaid || o.PaymentSessionID != "" {
		return repo.ErrNotFound
	}
	delete(r.s.orders, orderID)
	return nil
}

func (r memOrders) ListAbandoned(ctx context.Context, createdBefore time.Time, limit int) ([]model.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.Order{}
	for _, o := range r.s.orders {
		if o.PaymentStatus == model.PaymentStatusUnpaid && o.PaymentSessionID == "" && o.CreatedAt.Before(createdBefore) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memOrders) UpdateOrderStatus(ctx context.Context, orderID int64, status string, updatedAt time.Time) error {
	return r.update(orderID, func(o *model.Order) { o.OrderStatus, o.UpdatedAt = status, updatedAt })
}

func (r memOrders) UpdateShippingAddress(ctx context.Context, orderID int64, addr model.ShippingAddress, updatedAt time.Time) error {
	return r.update(orderID, func(o *model.Order) { o.ShippingAddress, o.UpdatedAt = addr, updatedAt })
}

func (r memOrders) SetPaymentSession(ctx context.Context, orderID int64, sessionID string, url string) error {
	return r.update(orderID, func(o *model.Order) { o.PaymentSessionID, o.PaymentURL = sessionID, url })
}

func (r memOrders) UpdatePaymentStatus(ctx context.Context, orderID int64, status model.PaymentStatus, updatedAt time.Time) error {
	return r.update(orderID, func(o *model.Order) { o.PaymentStatus, o.UpdatedAt = status, updatedAt })
}

func (r memOrders) update(orderID int64, fn func(o *model.Order)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[orderID]
	if !ok {
		return repo.ErrNotFound
	}
	fn(&o)
	r.s.orders[orderID] = o
	return nil
}

func (r memOrders) FindByIdempotencyKey(ctx context.Context, userID int64, key string) (model.Order, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.orders {
		if o.UserID == userID && o.IdempotencyKey == key {
			return o, true, nil
		}
	}
	return model.Order{}, false, nil
}

func (r memOrders) FindByPaymentSession(ctx context.Context, sessionID string) (model.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.orders {
		if o.PaymentSessionID == sessionID {
			return o, nil
		}
	}
	return model.Order{}, repo.ErrNotFound
}

func (r memOrders) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.Order{}
	for _, o := range r.s.orders {
		if f.UserID != nil && o.UserID != *f.UserID {
			continue
		}
		if f.Status != "" && o.OrderStatus != f.Status {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, int64(len(out)), nil
}

type memOrderItems struct{ s *memStore }

func (r memOrderItems) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range items {
		items[i].OrderID = orderID
	}
	r.s.orderItems[orderID] = append([]model.OrderItem{}, items...)
	return nil
}

func (r memOrderItems) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]model.OrderItem{}, r.s.orderItems[orderID]...), nil
}

func (r memOrderItems) DeleteByOrderID(ctx context.Context, orderID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.orderItems, orderID)
	return nil
}

type memAudit struct{ s *memStore }

func (r memAudit) Create(ctx context.Context, l model.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l.ID = r.s.id()
	r.s.audit = append(r.s.audit, l)
	return nil
}

func (r memAudit) List(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.AuditLog{}
	for _, l := range r.s.audit {
		if l.ResourceType == f.ResourceType && l.ResourceID == f.ResourceID {
			out = append(out, l)
		}
	}
	return out, nil
}

// =====================
// tx
// =====================

type memTx struct{ s *memStore }

func (t memTx) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return fn(t)
}

func (t memTx) Files() repo.FileRepository           { return memFiles{t.s} }
func (t memTx) Carts() repo.CartRepository           { return memCarts{t.s} }
func (t memTx) CartItems() repo.CartItemRepository   { return memCartItems{t.s} }
func (t memTx) Orders() repo.OrderRepository         { return memOrders{t.s} }
func (t memTx) OrderItems() repo.OrderItemRepository { return memOrderItems{t.s} }

// =====================
// external fakes
// =====================

type fakeBlobs struct{}

func (fakeBlobs) Store(ctx context.Context, key string, contentType string, data []byte) (external.BlobRef, error) {
	return external.BlobRef{ID: key, URL: "mem://" + key}, nil
}

func (fakeBlobs) Delete(ctx context.Context, id string) error { return nil }

// fakeSlicer は結果をテストから設定する
type fakeSlicer struct {
	mu      sync.Mutex
	results map[string]model.FileState
}

func (s *fakeSlicer) Submit(ctx context.Context, fileID string, blobURL string) (string, error) {
	return "job-" + fileID, nil
}

func (s *fakeSlicer) QueryStatus(ctx context.Context, fileID string, jobID string) (model.FileState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.results[fileID]; ok {
		return st, nil
	}
	return model.Unsliced{}, nil
}

func (s *fakeSlicer) finish(fileID string, st model.FileState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[fileID] = st
}

type fakePayments struct {
	mu       sync.Mutex
	sessions int
}

func (p *fakePayments) CreateSession(ctx context.Context, req external.SessionRequest) (external.PaymentSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions++
	id := "sess-" + strconv.Itoa(p.sessions)
	return external.PaymentSession{ID: id, RedirectURL: "https://pay.example/" + id}, nil
}

func (p *fakePayments) CreateCatalogEntry(ctx context.Context, name string) (string, error) {
	return "cat-" + name, nil
}

func (p *fakePayments) DeleteCatalogEntry(ctx context.Context, id string) error { return nil }

func (p *fakePayments) ExpireSession(ctx context.Context, sessionID string) error { return nil }

type noopWatcher struct{}

func (noopWatcher) Watch(id string)   {}
func (noopWatcher) Unwatch(id string) {}

type noopPublisher struct{}

func (noopPublisher) Publish(cartID int64, ev usecase.CartEvent) {}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return "file-" + strconv.Itoa(g.n)
}
