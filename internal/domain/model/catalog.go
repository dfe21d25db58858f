package model

import "github.com/shopspring/decimal"

// 外部で管理されるカタログ（このサービスは読むだけ）

// オプション（梱包・表面処理など）
type Addon struct {
	ID          string          `gorm:"type:varchar(64);primaryKey" json:"id"`
	Name        string          `gorm:"type:varchar(255);not null" json:"name"`
	Description string          `gorm:"type:text" json:"description"`
	Price       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	IsActive    bool            `gorm:"not null;default:true" json:"-"`
}

type ShippingOption struct {
	ID       string          `gorm:"type:varchar(64);primaryKey" json:"id"`
	Name     string          `gorm:"type:varchar(255);not null" json:"name"`
	Price    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	IsActive bool            `gorm:"not null;default:true" json:"-"`
}

// 材料（色）。PricePerKgは1000gあたりの単価。
type Material struct {
	ID         string          `gorm:"type:varchar(64);primaryKey" json:"id"`
	Name       string          `gorm:"type:varchar(255);not null" json:"name"`
	PricePerKg decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price_per_kg"`
	IsActive   bool            `gorm:"not null;default:true" json:"-"`
}
