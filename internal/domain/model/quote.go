package model

import (
	"time"

	"storefront/internal/domain/pricing"

	"github.com/shopspring/decimal"
)

// 見積もり用の明細。未スライスならUnitPriceはnil。
type QuoteItem struct {
	FileID       string           `json:"file_id"`
	FileName     string           `json:"file_name"`
	FileStatus   FileStatus       `json:"file_status"`
	Quantity     int64            `json:"quantity"`
	Quality      pricing.Quality  `json:"quality"`
	MaterialID   string           `json:"material_id"`
	MaterialName string           `json:"material_name"`
	UnitPrice    *decimal.Decimal `json:"unit_price"`
}

// 支払いのない注文のスナップショット（オフラインで確認する）。ステータスは持たない。
type Quote struct {
	ID            int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        int64       `gorm:"not null;index" json:"user_id"`
	CartID        int64       `gorm:"not null;index" json:"cart_id"`
	CustomerName  string      `gorm:"type:varchar(255);not null" json:"customer_name"`
	CustomerEmail string      `gorm:"type:varchar(255);not null" json:"customer_email"`
	Note          string      `gorm:"type:text" json:"note"`
	Items         []QuoteItem `gorm:"serializer:json;type:text;not null" json:"items"`
	CreatedAt     time.Time   `gorm:"not null" json:"created_at"`
}
