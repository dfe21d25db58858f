package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// 対象ごとの操作履歴の絞り込み
type AuditLogFilter struct {
	ResourceType model.AuditResourceType
	ResourceID   int64
	Limit        int
	Offset       int
}

type AuditLogRepository interface {
	Create(ctx context.Context, log model.AuditLog) error
	//古い順
	List(ctx context.Context, filter AuditLogFilter) ([]model.AuditLog, error)
}
