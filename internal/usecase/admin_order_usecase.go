package usecase

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/infra/metrics"
	repo "storefront/internal/repository"
)

type AdminOrderUsecase struct {
	tx        repo.TransactionManager
	auditRepo repo.AuditLogRepository
	clock     Clock
}

func NewAdminOrderUsecase(tx repo.TransactionManager, auditRepo repo.AuditLogRepository, clock Clock) *AdminOrderUsecase {
	return &AdminOrderUsecase{tx: tx, auditRepo: auditRepo, clock: clock}
}

type AdminUpdateOrderStatusInput struct {
	Status string
}

// 注文の操作履歴の1件
type OrderHistoryEntry struct {
	Action      model.AuditAction `json:"action"`
	ActorUserID int64             `json:"actor_user_id"`
	Before      json.RawMessage   `json:"before"`
	After       json.RawMessage   `json:"after"`
	At          time.Time         `json:"at"`
}

// 注文一覧
func (u *AdminOrderUsecase) List(ctx context.Context, f repo.AdminOrderListFilter) (OrderListOutput, error) {
	// page/limitの最低限チェック
	if f.Page < 1 {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if f.Limit < 1 || f.Limit > 100 {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	switch model.PaymentStatus(f.PaymentStatus) {
	case "", model.PaymentStatusUnpaid, model.PaymentStatusPaid, model.PaymentStatusExpired:
	default:
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid payment_status")
	}

	out := OrderListOutput{Items: []OrderOutput{}, Page: f.Page, Limit: f.Limit}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListAdmin(ctx, f)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		out.Total = total

		for _, o := range orders {
			items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			out.Items = append(out.Items, toOrderOutput(o, items))
		}
		return nil
	})

	if err != nil {
		return OrderListOutput{}, err
	}
	return out, nil
}

// ステータス更新。注文が持つ列の中ならどれでもよい（戻す・飛ばすも可）。
func (u *AdminOrderUsecase) UpdateStatus(ctx context.Context, actorAdminUserID int64, orderID int64, in AdminUpdateOrderStatusInput) error {
	if actorAdminUserID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	newStatus := strings.TrimSpace(in.Status)
	if newStatus == "" {
		return NewHTTPError(http.StatusBadRequest, "invalid status")
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// 注文取得
		o, err := r.Orders().FindByID(ctx, orderID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		// すでに同じなら何もしない（200）
		if o.OrderStatus == newStatus {
			return nil
		}

		beforeStatus := o.OrderStatus
		now := u.clock.Now()
		if err := o.SetOrderStatus(newStatus, now); err != nil {
			return NewHTTPError(http.StatusBadRequest, "invalid status")
		}

		if err := r.Orders().UpdateOrderStatus(ctx, orderID, o.OrderStatus, o.UpdatedAt); err != nil {
			if err == repo.ErrNotFound {
				return NewHTTPError(http.StatusNotFound, "not found")
			}
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		// 監査ログ（UPDATE_ORDER_STATUS）
		if err := u.audit(ctx, actorAdminUserID, model.AuditActionUpdateOrderStatus, orderID,
			model.OrderStatusAudit{Status: beforeStatus},
			model.OrderStatusAudit{Status: newStatus},
		); err != nil {
			return err
		}

		metrics.OrderStatusChanges.WithLabelValues(newStatus).Inc()
		return nil
	})
}

// 配送先の修正（注文後の住所変更の問い合わせ対応）
func (u *AdminOrderUsecase) UpdateShippingAddress(ctx context.Context, actorAdminUserID int64, orderID int64, addr model.ShippingAddress) error {
	if actorAdminUserID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if !addr.Complete() {
		return NewHTTPError(http.StatusBadRequest, "invalid shipping_address")
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		if err := r.Orders().UpdateShippingAddress(ctx, orderID, addr, u.clock.Now()); err != nil {
			if err == repo.ErrNotFound {
				return NewHTTPError(http.StatusNotFound, "not found")
			}
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		return u.audit(ctx, actorAdminUserID, model.AuditActionUpdateShippingAddress, orderID, o.ShippingAddress, addr)
	})
}

// Historyは注文に対する運営の操作を古い順に返す
func (u *AdminOrderUsecase) History(ctx context.Context, orderID int64) ([]OrderHistoryEntry, error) {
	if orderID <= 0 {
		return nil, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		_, err := r.Orders().FindByID(ctx, orderID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logs, err := u.auditRepo.List(ctx, repo.AuditLogFilter{
		ResourceType: model.AuditResourceOrder,
		ResourceID:   orderID,
		Limit:        200,
	})
	if err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	out := make([]OrderHistoryEntry, 0, len(logs))
	for _, l := range logs {
		out = append(out, OrderHistoryEntry{
			Action:      l.Action,
			ActorUserID: l.ActorUserID,
			Before:      rawJSON(l.BeforeJSON),
			After:       rawJSON(l.AfterJSON),
			At:          l.CreatedAt,
		})
	}
	return out, nil
}

func rawJSON(s string) json.RawMessage {
	if s == "" {
		return json.RawMessage("null")
	}
	return json.RawMessage(s)
}

func (u *AdminOrderUsecase) audit(ctx context.Context, actor int64, action model.AuditAction, orderID int64, before, after interface{}) error {
	beforeJSON, err := json.Marshal(before)
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	afterJSON, err := json.Marshal(after)
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	if err := u.auditRepo.Create(ctx, model.AuditLog{
		ActorUserID:  actor,
		Action:       action,
		ResourceType: model.AuditResourceOrder,
		ResourceID:   orderID,
		BeforeJSON:   string(beforeJSON),
		AfterJSON:    string(afterJSON),
		CreatedAt:    u.clock.Now(),
	}); err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}
