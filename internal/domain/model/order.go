package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusUnpaid  PaymentStatus = "UNPAID"
	PaymentStatusPaid    PaymentStatus = "PAID"
	PaymentStatusExpired PaymentStatus = "EXPIRED"
)

var DefaultOrderStatusOptions = []string{"Reviewing", "In Queue", "Printing", "Completed", "Shipping", "Delivered"}

var ErrUnknownOrderStatus = errors.New("unknown order status")

// 注文に対する運営の操作（監査ログに残す）
const (
	AuditResourceOrder AuditResourceType = "order"

	AuditActionUpdateOrderStatus     AuditAction = "UPDATE_ORDER_STATUS"
	AuditActionUpdateShippingAddress AuditAction = "UPDATE_SHIPPING_ADDRESS"
)

// OrderStatusAuditはステータス変更の前後として監査ログに書く形
type OrderStatusAudit struct {
	Status string `json:"status"`
}

// 注文時点のオプション
type OrderAddon struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// チェックアウト時点のカートのスナップショット。
// 金額はここに保存した値が正で、ファイルから再計算しない。
type Order struct {
	ID     int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID int64 `gorm:"not null;index" json:"user_id"`
	CartID int64 `gorm:"not null;index" json:"cart_id"`

	//注文ごとに保存したステータス列（後から設定が変わっても過去の注文は影響を受けない）
	OrderStatus        string   `gorm:"type:varchar(50);not null;index" json:"order_status"`
	OrderStatusOptions []string `gorm:"serializer:json;type:text;not null" json:"order_status_options"`

	PaymentStatus    PaymentStatus `gorm:"type:varchar(20);not null;index" json:"payment_status"`
	PaymentSessionID string        `gorm:"type:varchar(255);index" json:"-"`
	PaymentURL       string        `gorm:"type:text" json:"-"`

	CustomerName    string          `gorm:"type:varchar(255);not null" json:"customer_name"`
	CustomerEmail   string          `gorm:"type:varchar(255);not null" json:"customer_email"`
	ShippingAddress ShippingAddress `gorm:"embedded;embeddedPrefix:ship_" json:"shipping_address"`

	ShippingOptionID   string       `gorm:"type:varchar(64);not null" json:"shipping_option_id"`
	ShippingOptionName string       `gorm:"type:varchar(255);not null" json:"shipping_option_name"`
	Addons             []OrderAddon `gorm:"serializer:json;type:text" json:"addons"`

	Subtotal     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"subtotal"`
	AddonsTotal  decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"addons_total"`
	ShippingCost decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"shipping"`
	Tax          decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"tax"`
	Total        decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total"`

	IdempotencyKey string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"-"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null" json:"date_updated"`
}

type TimelineState string

const (
	TimelineComplete   TimelineState = "complete"
	TimelineInProgress TimelineState = "in_progress"
	TimelinePending    TimelineState = "pending"
)

type TimelineStep struct {
	Status string        `json:"status"`
	State  TimelineState `json:"state"`
}

// InitialStatusは列の先頭
func InitialStatus(options []string) string {
	if len(options) == 0 {
		return ""
	}
	return options[0]
}

func (o Order) StatusIndex() int {
	return indexOf(o.OrderStatusOptions, o.OrderStatus)
}

// SetOrderStatusは列に含まれる値ならどれでも受け付ける（戻す・飛ばすも可）。
// 履歴は残さず、現在値と更新時刻だけ持つ。
func (o *Order) SetOrderStatus(status string, now time.Time) error {
	if indexOf(o.OrderStatusOptions, status) < 0 {
		return ErrUnknownOrderStatus
	}
	o.OrderStatus = status
	o.UpdatedAt = now
	return nil
}

// Timelineは現在より前を完了、同じを進行中、後を未着手として返す
func (o Order) Timeline() []TimelineStep {
	cur := o.StatusIndex()
	steps := make([]TimelineStep, 0, len(o.OrderStatusOptions))
	for i, s := range o.OrderStatusOptions {
		st := TimelinePending
		switch {
		case i < cur:
			st = TimelineComplete
		case i == cur:
			st = TimelineInProgress
		}
		steps = append(steps, TimelineStep{Status: s, State: st})
	}
	return steps
}

func indexOf(options []string, s string) int {
	for i, o := range options {
		if o == s {
			return i
		}
	}
	return -1
}
