package usecase

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

// UUID 等のIDを作る約束
type IDGenerator interface {
	NewID() string
}

// 現在の時間
type Clock interface {
	Now() time.Time
}

// スライスジョブの投入（完了は待たない）
type SliceDispatcher interface {
	Dispatch(ctx context.Context, f model.File) error
}

// スライス待ちファイルの監視
type FileWatcher interface {
	Watch(id string)
	Unwatch(id string)
}

// カートの購読者への通知
type CartPublisher interface {
	Publish(cartID int64, ev CartEvent)
}
