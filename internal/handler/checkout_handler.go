package handler

import (
	"crypto/subtle"
	"net/http"

	"storefront/internal/config"
	"storefront/internal/domain/model"
	"storefront/internal/middleware"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type CheckoutHandler struct {
	uc            *usecase.CheckoutUsecase
	webhookSecret string
}

func NewCheckoutHandler(uc *usecase.CheckoutUsecase, webhookSecret string) *CheckoutHandler {
	return &CheckoutHandler{uc: uc, webhookSecret: webhookSecret}
}

type CheckoutRequest struct {
	ShippingOptionID string                `json:"shipping_option_id"`
	CustomerName     string                `json:"customer_name"`
	CustomerEmail    string                `json:"customer_email"`
	ShippingAddress  model.ShippingAddress `json:"shipping_address"`
	ExpectedTotal    *decimal.Decimal      `json:"expected_total"`
}

type PaymentWebhookRequest struct {
	SessionID string `json:"session_id"`
	Type      string `json:"type"`
}

func (h *CheckoutHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	e.POST("/carts/:id/checkout", h.checkout, middleware.AuthJWT(cfg))

	//決済サービスからの通知はJWTではなく共有シークレット
	e.POST("/payments/webhook", h.webhook)
}

func (h *CheckoutHandler) checkout(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	cartID, ok := paramInt64(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	var req CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	//二重送信防止キーはヘッダーから受け取る（bodyには入れない）
	idemKey := c.Request().Header.Get("X-Idempotency-Key")

	out, err := h.uc.Checkout(c.Request().Context(), userID, cartID, usecase.CheckoutInput{
		IdempotencyKey:   idemKey,
		ShippingOptionID: req.ShippingOptionID,
		CustomerName:     req.CustomerName,
		CustomerEmail:    req.CustomerEmail,
		ShippingAddress:  req.ShippingAddress,
		ExpectedTotal:    req.ExpectedTotal,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *CheckoutHandler) webhook(c echo.Context) error {
	got := c.Request().Header.Get("X-Webhook-Secret")
	if h.webhookSecret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.webhookSecret)) != 1 {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req PaymentWebhookRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	if err := h.uc.HandlePaymentEvent(c.Request().Context(), usecase.PaymentEventInput{
		SessionID: req.SessionID,
		Type:      usecase.PaymentEventType(req.Type),
	}); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, SuccessResponse{Message: "ok"})
}
