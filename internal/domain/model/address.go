package model

import "strings"

// 配送先住所。注文にembeddedで保存する（コピー）。
type ShippingAddress struct {
	//宛名
	Name string `gorm:"type:varchar(255);not null" json:"name"`

	//電話番号
	Phone string `gorm:"type:varchar(30)" json:"phone"`

	//郵便番号
	PostalCode string `gorm:"type:varchar(20);not null" json:"postal_code"`

	//州・都道府県
	Region string `gorm:"type:varchar(100)" json:"region"`

	City string `gorm:"type:varchar(255);not null" json:"city"`

	//番地など
	Line1 string `gorm:"type:varchar(255);not null" json:"line1"`

	//建物名など
	Line2 string `gorm:"type:varchar(255)" json:"line2"`

	Country string `gorm:"type:varchar(2);not null" json:"country"`
}

// Completeは必須項目が揃っているか
func (a ShippingAddress) Complete() bool {
	return strings.TrimSpace(a.Name) != "" &&
		strings.TrimSpace(a.PostalCode) != "" &&
		strings.TrimSpace(a.City) != "" &&
		strings.TrimSpace(a.Line1) != "" &&
		len(strings.TrimSpace(a.Country)) == 2
}
