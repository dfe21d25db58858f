package model

import "time"

type CartStatus string

const (
	CartStatusActive     CartStatus = "ACTIVE"
	CartStatusCheckedOut CartStatus = "CHECKED_OUT"
)

// 1ユーザーにつきACTIVEは1つ
// Lockedはチェックアウト開始後にtrue。trueの間は変更を受け付けない。
type Cart struct {
	ID               int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID           int64      `gorm:"not null;index" json:"user_id"`
	Status           CartStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	Locked           bool       `gorm:"not null;default:false" json:"cart_locked"`
	AddonIDs         []string   `gorm:"serializer:json;type:text" json:"addon_ids"`
	ShippingOptionID string     `gorm:"type:varchar(64)" json:"shipping_option_id"`
	CreatedAt        time.Time  `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (c Cart) HasAddon(id string) bool {
	for _, a := range c.AddonIDs {
		if a == id {
			return true
		}
	}
	return false
}
