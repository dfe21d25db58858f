package model

import (
	"time"

	"storefront/internal/domain/pricing"
)

// 1カートの中でFileIDは一意
// 価格は持たない（読むたびにファイルから計算する）
type CartItem struct {
	ID         int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	CartID     int64           `gorm:"not null;uniqueIndex:idx_cart_file" json:"cart_id"`
	FileID     string          `gorm:"type:uuid;not null;uniqueIndex:idx_cart_file;index" json:"file_id"`
	Quantity   int64           `gorm:"not null" json:"quantity"`
	Quality    pricing.Quality `gorm:"type:varchar(10);not null" json:"quality"`
	MaterialID string          `gorm:"type:varchar(64);not null" json:"material_id"`
	CreatedAt  time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
