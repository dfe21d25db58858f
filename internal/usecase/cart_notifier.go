package usecase

import (
	"context"
	"sync"

	"storefront/internal/domain/model"

	"go.uber.org/zap"
)

type CartEventType string

const (
	CartEventUpdated      CartEventType = "cart_updated"
	CartEventFileResolved CartEventType = "file_resolved"
	CartEventFileRemoved  CartEventType = "file_removed"
	CartEventLocked       CartEventType = "cart_locked"
	CartEventUnlocked     CartEventType = "cart_unlocked"
	CartEventCheckedOut   CartEventType = "cart_checked_out"
)

type CartEvent struct {
	Type       CartEventType    `json:"type"`
	CartID     int64            `json:"cart_id"`
	FileID     string           `json:"file_id,omitempty"`
	FileStatus model.FileStatus `json:"file_status,omitempty"`
}

type cartIDsByFile interface {
	ListCartIDsByFileID(ctx context.Context, fileID string) ([]int64, error)
}

const subscriberBuffer = 16

// CartNotifierはカートごとの購読者に通知する（全体への配信はしない）。
// 受信が遅い購読者の分は捨てる。
type CartNotifier struct {
	items  cartIDsByFile
	logger *zap.Logger

	mu   sync.RWMutex
	subs map[int64]map[chan CartEvent]struct{}
}

var _ CartPublisher = (*CartNotifier)(nil)

func NewCartNotifier(items cartIDsByFile, logger *zap.Logger) *CartNotifier {
	return &CartNotifier{
		items:  items,
		logger: logger,
		subs:   map[int64]map[chan CartEvent]struct{}{},
	}
}

// Subscribeは解除用の関数も返す。解除するとチャネルは閉じる。
func (n *CartNotifier) Subscribe(cartID int64) (<-chan CartEvent, func()) {
	ch := make(chan CartEvent, subscriberBuffer)

	n.mu.Lock()
	if n.subs[cartID] == nil {
		n.subs[cartID] = map[chan CartEvent]struct{}{}
	}
	n.subs[cartID][ch] = struct{}{}
	n.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs[cartID], ch)
			if len(n.subs[cartID]) == 0 {
				delete(n.subs, cartID)
			}
			n.mu.Unlock()
			close(ch)
		})
	}
}

func (n *CartNotifier) Publish(cartID int64, ev CartEvent) {
	ev.CartID = cartID

	n.mu.RLock()
	defer n.mu.RUnlock()
	for ch := range n.subs[cartID] {
		select {
		case ch <- ev:
		default:
			n.logger.Debug("cart subscriber slow, event dropped", zap.Int64("cart_id", cartID))
		}
	}
}

// FileResolvedはreconcilerの結果リスナーとして登録する
func (n *CartNotifier) FileResolved(ctx context.Context, f model.File) {
	ids, err := n.items.ListCartIDsByFileID(ctx, f.ID)
	if err != nil {
		n.logger.Warn("lookup carts for resolved file failed", zap.String("file_id", f.ID), zap.Error(err))
		return
	}
	for _, id := range ids {
		n.Publish(id, CartEvent{Type: CartEventFileResolved, FileID: f.ID, FileStatus: f.Status})
	}
}
