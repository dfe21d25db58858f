package usecase

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/domain/totals"
	"storefront/internal/external"
	"storefront/internal/infra/metrics"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CheckoutConfig struct {
	FreeShippingThreshold decimal.Decimal
	TaxRate               decimal.Decimal
	// 新しい注文にコピーするステータス列
	OrderStatusOptions []string
	// これより古くて決済セッションが無い注文は取り消してよい
	AbandonAfter time.Duration
}

type CheckoutUsecase struct {
	tx       repo.TransactionManager
	orders   repo.OrderRepository
	catalog  repo.CatalogRepository
	payments external.PaymentService
	notifier CartPublisher
	clock    Clock
	cfg      CheckoutConfig
	logger   *zap.Logger
}

func NewCheckoutUsecase(
	tx repo.TransactionManager,
	orders repo.OrderRepository,
	catalog repo.CatalogRepository,
	payments external.PaymentService,
	notifier CartPublisher,
	clock Clock,
	cfg CheckoutConfig,
	logger *zap.Logger,
) *CheckoutUsecase {
	return &CheckoutUsecase{
		tx:       tx,
		orders:   orders,
		catalog:  catalog,
		payments: payments,
		notifier: notifier,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

type CheckoutInput struct {
	IdempotencyKey   string
	ShippingOptionID string
	CustomerName     string
	CustomerEmail    string
	ShippingAddress  model.ShippingAddress
	// 画面に表示していた合計。違っていたら409。
	ExpectedTotal *decimal.Decimal
}

type CheckoutOutput struct {
	OrderID     int64  `json:"order_id"`
	RedirectURL string `json:"redirect_url"`
}

type PaymentEventType string

const (
	PaymentEventPaid    PaymentEventType = "paid"
	PaymentEventExpired PaymentEventType = "expired"
)

type PaymentEventInput struct {
	SessionID string
	Type      PaymentEventType
}

var (
	errDuplicateCheckout = errors.New("duplicate checkout")
	// 取り消そうとした注文がもう無い、またはセッションが付いていた
	errAlreadySettled = errors.New("order already settled")
)

const abandonBatch = 100

// Checkoutは1トランザクションで検証・注文作成・カートロックまで行い、
// 決済セッションはコミット後に作る。失敗したら注文を消してロックを戻す。
func (u *CheckoutUsecase) Checkout(ctx context.Context, userID int64, cartID int64, in CheckoutInput) (CheckoutOutput, error) {
	if userID <= 0 {
		return CheckoutOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if cartID <= 0 {
		return CheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if key == "" || len(key) > 255 {
		return CheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "invalid idempotency_key")
	}
	if err := validateCustomer(in); err != nil {
		return CheckoutOutput{}, err
	}

	// 同じキーなら同じ結果
	if out, found, err := u.existing(ctx, userID, key); found || err != nil {
		return out, err
	}

	var (
		order model.Order
		lines []external.SessionLine
	)
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		order, lines, err = u.placeOrder(ctx, r, userID, cartID, key, in)
		return err
	})
	if errors.Is(err, errDuplicateCheckout) {
		//同時に同じキーで作られた
		out, found, err := u.existing(ctx, userID, key)
		if err == nil && !found {
			return CheckoutOutput{}, NewHTTPError(http.StatusConflict, "checkout in progress")
		}
		return out, err
	}
	if err != nil {
		if he, ok := AsHTTPError(err); ok && he.Status == http.StatusConflict {
			metrics.Checkouts.WithLabelValues("conflict").Inc()
		} else {
			metrics.Checkouts.WithLabelValues("rejected").Inc()
		}
		return CheckoutOutput{}, err
	}
	u.notifier.Publish(cartID, CartEvent{Type: CartEventLocked})

	session, err := u.payments.CreateSession(ctx, external.SessionRequest{
		OrderID:       order.ID,
		CustomerEmail: order.CustomerEmail,
		Lines:         lines,
		AddonsTotal:   order.AddonsTotal,
		Shipping:      order.ShippingCost,
		Tax:           order.Tax,
		Total:         order.Total,
	})
	if err != nil {
		u.logger.Error("create payment session failed", zap.Int64("order_id", order.ID), zap.Error(err))
		_ = u.compensate(ctx, order)
		metrics.Checkouts.WithLabelValues("payment_failed").Inc()
		return CheckoutOutput{}, NewHTTPError(http.StatusBadGateway, "payment unavailable")
	}

	if err := u.orders.SetPaymentSession(ctx, order.ID, session.ID, session.RedirectURL); err != nil {
		u.logger.Error("record payment session failed", zap.Int64("order_id", order.ID), zap.String("session_id", session.ID), zap.Error(err))
		//記録できなかったセッションで支払われないように先に無効にする
		if err := u.payments.ExpireSession(ctx, session.ID); err != nil {
			u.logger.Error("expire payment session failed", zap.Int64("order_id", order.ID), zap.String("session_id", session.ID), zap.Error(err))
		}
		_ = u.compensate(ctx, order)
		metrics.Checkouts.WithLabelValues("payment_failed").Inc()
		return CheckoutOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	metrics.Checkouts.WithLabelValues("created").Inc()
	u.logger.Info("checkout created", zap.Int64("order_id", order.ID), zap.Int64("cart_id", cartID), zap.String("total", order.Total.StringFixed(2)))
	return CheckoutOutput{OrderID: order.ID, RedirectURL: session.RedirectURL}, nil
}

func (u *CheckoutUsecase) existing(ctx context.Context, userID int64, key string) (CheckoutOutput, bool, error) {
	o, found, err := u.orders.FindByIdempotencyKey(ctx, userID, key)
	if err != nil {
		return CheckoutOutput{}, false, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !found {
		return CheckoutOutput{}, false, nil
	}
	switch {
	case o.PaymentStatus == model.PaymentStatusExpired:
		return CheckoutOutput{}, true, NewHTTPError(http.StatusConflict, "order expired")
	case o.PaymentURL == "":
		return CheckoutOutput{}, true, NewHTTPError(http.StatusConflict, "checkout in progress")
	}
	return CheckoutOutput{OrderID: o.ID, RedirectURL: o.PaymentURL}, true, nil
}

func (u *CheckoutUsecase) placeOrder(ctx context.Context, r repo.TxRepos, userID int64, cartID int64, key string, in CheckoutInput) (model.Order, []external.SessionLine, error) {
	cart, err := r.Carts().FindByIDForUpdate(ctx, cartID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && cart.UserID != userID) {
		return model.Order{}, nil, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return model.Order{}, nil, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if cart.Locked || cart.Status != model.CartStatusActive {
		return model.Order{}, nil, NewHTTPError(http.StatusConflict, "cart locked")
	}

	//ロックを取った後に読み直す
	cartItems, err := r.CartItems().ListByCartID(ctx, cartID)
	if err != nil {
		return model.Order{}, nil, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	materials, err := u.catalog.ListMaterials(ctx)
	if err != nil {
		return model.Order{}, nil, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	lines, err := cartLines(ctx, cartItems, r.Files(), materials)
	if err != nil {
		return model.Order{}, nil, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	if reasons := totals.Validate(lines); len(reasons) > 0 {
		return model.Order{}, nil, NewHTTPErrorWithDetails(http.StatusBadRequest, "cart not ready", reasonCodes(reasons))
	}
	for _, l := range lines {
		if l.Material == nil {
			return model.Order{}, nil, NewHTTPError(http.StatusBadRequest, "invalid material_id")
		}
	}

	shippingID := strings.TrimSpace(in.ShippingOptionID)
	if shippingID == "" {
		shippingID = cart.ShippingOptionID
	}
	if shippingID == "" {
		return model.Order{}, nil, NewHTTPError(http.StatusBadRequest, "shipping option required")
	}
	shipping, err := u.catalog.FindShippingOption(ctx, shippingID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Order{}, nil, NewHTTPError(http.StatusBadRequest, "invalid shipping_option_id")
	}
	if err != nil {
		return model.Order{}, nil, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	catalogAddons, err := u.catalog.ListAddons(ctx)
	if err != nil {
		return model.Order{}, nil, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	addons := totals.PruneAddons(cart.AddonIDs, catalogAddons)

	s := totals.Compute(lines, addons, &shipping, u.cfg.FreeShippingThreshold)
	tax := totals.Tax(s, u.cfg.TaxRate)
	total := s.Total.Add(tax)

	if in.ExpectedTotal != nil && !pricingEqual(*in.ExpectedTotal, total) {
		return model.Order{}, nil, NewHTTPError(http.StatusConflict, "cart changed")
	}

	now := u.clock.Now()
	options := append([]string(nil), u.cfg.OrderStatusOptions...)
	orderAddons := make([]model.OrderAddon, 0, len(addons))
	for _, a := range addons {
		orderAddons = append(orderAddons, model.OrderAddon{ID: a.ID, Name: a.Name, Price: a.Price})
	}

	order := model.Order{
		UserID:             userID,
		CartID:             cartID,
		OrderStatus:        model.InitialStatus(options),
		OrderStatusOptions: options,
		PaymentStatus:      model.PaymentStatusUnpaid,
		CustomerName:       strings.TrimSpace(in.CustomerName),
		CustomerEmail:      strings.TrimSpace(in.CustomerEmail),
		ShippingAddress:    in.ShippingAddress,
		ShippingOptionID:   shipping.ID,
		ShippingOptionName: shipping.Name,
		Addons:             orderAddons,
		Subtotal:           s.Subtotal,
		AddonsTotal:        s.AddonsTotal,
		ShippingCost:       s.Shipping,
		Tax:                tax,
		Total:              total,
		IdempotencyKey:     key,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	orderID, err := r.Orders().Create(ctx, order)
	if errors.Is(err, repo.ErrConflict) {
		return model.Order{}, nil, errDuplicateCheckout
	}
	if err != nil {
		return model.Order{}, nil, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	order.ID = orderID

	//スナップショット
	items := make([]model.OrderItem, 0, len(s.Lines))
	for _, l := range s.Lines {
		mass := l.File.State().(model.Sliced).MassGrams
		items = append(items, model.OrderItem{
			FileID:               l.File.ID,
			FileNameSnapshot:     l.File.Name,
			MassGramsSnapshot:    mass,
			Quality:              l.Item.Quality,
			MaterialID:           l.Item.MaterialID,
			MaterialNameSnapshot: l.Material.Name,
			UnitPriceSnapshot:    *l.UnitPrice,
			Quantity:             l.Item.Quantity,
			LineTotal:            l.LineTotal,
			CreatedAt:            now,
		})
	}
	if err := r.OrderItems().CreateBulk(ctx, orderID, items); err != nil {
		return model.Order{}, nil, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	if err := r.Carts().SetLocked(ctx, cartID, true); err != nil {
		return model.Order{}, nil, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return order, sessionLines(s.Lines), nil
}

func sessionLines(lines []totals.LineResult) []external.SessionLine {
	out := make([]external.SessionLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, external.SessionLine{
			CatalogEntryID: l.File.CatalogEntryID,
			Name:           l.File.Name,
			UnitPrice:      *l.UnitPrice,
			Quantity:       l.Item.Quantity,
		})
	}
	return out
}

// compensateは決済セッションが付かなかった注文を取り消してカートのロックを外す。
// 失敗しても注文は残るのでReleaseAbandonedが後で拾う。
func (u *CheckoutUsecase) compensate(ctx context.Context, order model.Order) error {
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//セッションが付いた注文は消さない
		if err := r.Orders().DeleteAbandoned(ctx, order.ID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return errAlreadySettled
			}
			return err
		}
		if err := r.OrderItems().DeleteByOrderID(ctx, order.ID); err != nil {
			return err
		}
		return r.Carts().SetLocked(ctx, order.CartID, false)
	})
	if errors.Is(err, errAlreadySettled) {
		return err
	}
	if err != nil {
		u.logger.Error("checkout compensation failed", zap.Int64("order_id", order.ID), zap.Int64("cart_id", order.CartID), zap.Error(err))
		return err
	}
	u.notifier.Publish(order.CartID, CartEvent{Type: CartEventUnlocked})
	return nil
}

// ReleaseAbandonedは決済セッションが付かないまま古くなった注文を取り消す。
// 取り消しに失敗したチェックアウトやセッション作成前に落ちたプロセスの後始末。
func (u *CheckoutUsecase) ReleaseAbandoned(ctx context.Context) (int, error) {
	if u.cfg.AbandonAfter <= 0 {
		return 0, nil
	}
	orders, err := u.orders.ListAbandoned(ctx, u.clock.Now().Add(-u.cfg.AbandonAfter), abandonBatch)
	if err != nil {
		return 0, err
	}

	released := 0
	var errs []error
	for _, o := range orders {
		err := u.compensate(ctx, o)
		if errors.Is(err, errAlreadySettled) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		released++
		metrics.Checkouts.WithLabelValues("abandoned").Inc()
		u.logger.Info("abandoned checkout released", zap.Int64("order_id", o.ID), zap.Int64("cart_id", o.CartID))
	}
	return released, errors.Join(errs...)
}

// HandlePaymentEventは決済サービスからの通知。同じ通知が何度来てもよい。
func (u *CheckoutUsecase) HandlePaymentEvent(ctx context.Context, in PaymentEventInput) error {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return NewHTTPError(http.StatusBadRequest, "invalid session_id")
	}

	var target model.PaymentStatus
	switch in.Type {
	case PaymentEventPaid:
		target = model.PaymentStatusPaid
	case PaymentEventExpired:
		target = model.PaymentStatusExpired
	default:
		return NewHTTPError(http.StatusBadRequest, "invalid event type")
	}

	o, err := u.orders.FindByPaymentSession(ctx, sessionID)
	if errors.Is(err, repo.ErrNotFound) {
		return NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}

	if o.PaymentStatus == target {
		return nil
	}
	if o.PaymentStatus != model.PaymentStatusUnpaid {
		return NewHTTPError(http.StatusConflict, "invalid payment transition")
	}

	now := u.clock.Now()
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if err := r.Orders().UpdatePaymentStatus(ctx, o.ID, target, now); err != nil {
			return err
		}
		if target == model.PaymentStatusPaid {
			//ロックしたまま終了
			return r.Carts().UpdateStatus(ctx, o.CartID, model.CartStatusCheckedOut)
		}
		//期限切れならやり直せるようにロックを外す
		return r.Carts().SetLocked(ctx, o.CartID, false)
	})
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}

	metrics.PaymentEvents.WithLabelValues(string(in.Type)).Inc()
	if target == model.PaymentStatusPaid {
		u.notifier.Publish(o.CartID, CartEvent{Type: CartEventCheckedOut})
	} else {
		u.notifier.Publish(o.CartID, CartEvent{Type: CartEventUnlocked})
	}
	u.logger.Info("payment event applied", zap.Int64("order_id", o.ID), zap.String("type", string(in.Type)))
	return nil
}

func validateCustomer(in CheckoutInput) error {
	name := strings.TrimSpace(in.CustomerName)
	if name == "" || len(name) > 255 {
		return NewHTTPError(http.StatusBadRequest, "invalid customer_name")
	}
	email := strings.TrimSpace(in.CustomerEmail)
	if _, err := mail.ParseAddress(email); err != nil || len(email) > 255 {
		return NewHTTPError(http.StatusBadRequest, "invalid customer_email")
	}
	if !in.ShippingAddress.Complete() {
		return NewHTTPError(http.StatusBadRequest, "invalid shipping_address")
	}
	return nil
}

// 2桁に丸めて比べる
func pricingEqual(a, b decimal.Decimal) bool {
	return a.Round(2).Equal(b.Round(2))
}
