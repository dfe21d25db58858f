// Package external は外部サービス（ストレージ・スライサー・決済）の約束
package external

import (
	"context"
	"errors"

	"storefront/internal/domain/model"

	"github.com/shopspring/decimal"
)

var (
	// 一時的な失敗（通信エラー・5xx）。次の周期で再試行する。
	ErrUnavailable = errors.New("external service unavailable")
	// スライサーがジョブを知らない（再投入が必要）
	ErrJobNotFound = errors.New("slicing job not found")
)

type BlobRef struct {
	ID  string
	URL string
}

type BlobStore interface {
	Store(ctx context.Context, key string, contentType string, data []byte) (BlobRef, error)
	Delete(ctx context.Context, id string) error
}

// Slicerはジョブ投入と状態確認だけ。完了通知は来ない。
type Slicer interface {
	Submit(ctx context.Context, fileID string, blobURL string) (jobID string, err error)
	// 実行中ならmodel.Unsliced、完了ならSliced / Failedを返す
	QueryStatus(ctx context.Context, fileID string, jobID string) (model.FileState, error)
}

type SessionLine struct {
	CatalogEntryID string
	Name           string
	UnitPrice      decimal.Decimal
	Quantity       int64
}

type SessionRequest struct {
	OrderID       int64
	CustomerEmail string
	Lines         []SessionLine
	AddonsTotal   decimal.Decimal
	Shipping      decimal.Decimal
	Tax           decimal.Decimal
	Total         decimal.Decimal
}

type PaymentSession struct {
	ID          string
	RedirectURL string
}

type PaymentService interface {
	CreateSession(ctx context.Context, req SessionRequest) (PaymentSession, error)
	// 支払われる前にセッションを無効にする
	ExpireSession(ctx context.Context, sessionID string) error
	CreateCatalogEntry(ctx context.Context, name string) (string, error)
	DeleteCatalogEntry(ctx context.Context, id string) error
}
