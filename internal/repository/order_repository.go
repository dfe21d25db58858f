package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

type AdminOrderListFilter struct {
	Page          int
	Limit         int
	Status        string
	PaymentStatus string
	UserID        *int64
	From          *time.Time
	To            *time.Time
}

type OrderRepository interface {
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error)
	//一意制約違反はErrConflict
	Create(ctx context.Context, order model.Order) (int64, error)
	//未払いで決済セッションが無い注文だけ消す。それ以外はErrNotFound
	DeleteAbandoned(ctx context.Context, orderID int64) error
	//createdBefore より前に作られて決済セッションが付かなかった注文
	ListAbandoned(ctx context.Context, createdBefore time.Time, limit int) ([]model.Order, error)

	UpdateOrderStatus(ctx context.Context, orderID int64, status string, updatedAt time.Time) error
	UpdateShippingAddress(ctx context.Context, orderID int64, addr model.ShippingAddress, updatedAt time.Time) error
	SetPaymentSession(ctx context.Context, orderID int64, sessionID string, url string) error
	UpdatePaymentStatus(ctx context.Context, orderID int64, status model.PaymentStatus, updatedAt time.Time) error

	//検索（同じキーなら同じ結果を返す）
	FindByIdempotencyKey(ctx context.Context, userID int64, key string) (model.Order, bool, error)
	FindByPaymentSession(ctx context.Context, sessionID string) (model.Order, error)
	//管理者用の注文一覧
	ListAdmin(ctx context.Context, f AdminOrderListFilter) ([]model.Order, int64, error)
}
