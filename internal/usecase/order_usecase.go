package usecase

import (
	"context"
	"net/http"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/domain/pricing"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
)

type OrderUsecase struct {
	tx repo.TransactionManager
}

func NewOrderUsecase(tx repo.TransactionManager) *OrderUsecase {
	return &OrderUsecase{tx: tx}
}

type OrderItemOutput struct {
	FileID       string          `json:"file_id"`
	FileName     string          `json:"file_name"`
	MassGrams    float64         `json:"mass_grams"`
	Quality      pricing.Quality `json:"quality"`
	MaterialID   string          `json:"material_id"`
	MaterialName string          `json:"material_name"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Quantity     int64           `json:"quantity"`
	LineTotal    decimal.Decimal `json:"line_total"`
}

type OrderOutput struct {
	ID                 int64                 `json:"id"`
	UserID             int64                 `json:"user_id"`
	OrderStatus        string                `json:"order_status"`
	OrderStatusOptions []string              `json:"order_status_options"`
	Timeline           []model.TimelineStep  `json:"timeline"`
	PaymentStatus      model.PaymentStatus   `json:"payment_status"`
	PaymentURL         string                `json:"payment_url,omitempty"`
	CustomerName       string                `json:"customer_name"`
	CustomerEmail      string                `json:"customer_email"`
	ShippingAddress    model.ShippingAddress `json:"shipping_address"`
	ShippingOptionName string                `json:"shipping_option_name"`
	Addons             []model.OrderAddon    `json:"addons"`
	Subtotal           decimal.Decimal       `json:"subtotal"`
	AddonsTotal        decimal.Decimal       `json:"addons_total"`
	Shipping           decimal.Decimal       `json:"shipping"`
	Tax                decimal.Decimal       `json:"tax"`
	Total              decimal.Decimal       `json:"total"`
	CreatedAt          time.Time             `json:"created_at"`
	DateUpdated        time.Time             `json:"date_updated"`
	Items              []OrderItemOutput     `json:"items"`
}

type OrderListOutput struct {
	Items []OrderOutput `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, userID int64, page int, limit int) (OrderListOutput, error) {
	if userID <= 0 {
		return OrderListOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if page < 1 {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if limit < 1 || limit > 100 {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}

	out := OrderListOutput{Items: []OrderOutput{}, Page: page, Limit: limit}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListByUserID(ctx, userID, page, limit)
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

func (u *OrderUsecase) GetMyOrderDetail(ctx context.Context, userID int64, orderID int64) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if o.UserID != userID {
			//他人の注文は「存在しない扱い」にする
			return NewHTTPError(http.StatusNotFound, "not found")
		}

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		out = toOrderOutput(o, items)
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			FileID:       it.FileID,
			FileName:     it.FileNameSnapshot,
			MassGrams:    it.MassGramsSnapshot,
			Quality:      it.Quality,
			MaterialID:   it.MaterialID,
			MaterialName: it.MaterialNameSnapshot,
			UnitPrice:    it.UnitPriceSnapshot,
			Quantity:     it.Quantity,
			LineTotal:    it.LineTotal,
		})
	}

	out := OrderOutput{
		ID:                 o.ID,
		UserID:             o.UserID,
		OrderStatus:        o.OrderStatus,
		OrderStatusOptions: o.OrderStatusOptions,
		Timeline:           o.Timeline(),
		PaymentStatus:      o.PaymentStatus,
		CustomerName:       o.CustomerName,
		CustomerEmail:      o.CustomerEmail,
		ShippingAddress:    o.ShippingAddress,
		ShippingOptionName: o.ShippingOptionName,
		Addons:             o.Addons,
		Subtotal:           o.Subtotal,
		AddonsTotal:        o.AddonsTotal,
		Shipping:           o.ShippingCost,
		Tax:                o.Tax,
		Total:              o.Total,
		CreatedAt:          o.CreatedAt,
		DateUpdated:        o.UpdatedAt,
		Items:              outItems,
	}
	//未払いのときだけ支払いURLを返す
	if o.PaymentStatus == model.PaymentStatusUnpaid {
		out.PaymentURL = o.PaymentURL
	}
	return out
}
