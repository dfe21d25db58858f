package model

import (
	"time"

	"storefront/internal/domain/pricing"

	"github.com/shopspring/decimal"
)

// 注文明細。ファイルが後で変わっても影響を受けないようにコピーを持つ。
type OrderItem struct {
	ID                   int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID              int64           `gorm:"not null;index" json:"order_id"`
	FileID               string          `gorm:"type:uuid;not null;index" json:"file_id"`
	FileNameSnapshot     string          `gorm:"type:varchar(255);not null" json:"file_name"`
	MassGramsSnapshot    float64         `gorm:"not null" json:"mass_grams"`
	Quality              pricing.Quality `gorm:"type:varchar(10);not null" json:"quality"`
	MaterialID           string          `gorm:"type:varchar(64);not null" json:"material_id"`
	MaterialNameSnapshot string          `gorm:"type:varchar(255);not null" json:"material_name"`
	UnitPriceSnapshot    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price"`
	Quantity             int64           `gorm:"not null" json:"quantity"`
	LineTotal            decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"line_total"`
	CreatedAt            time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
}
