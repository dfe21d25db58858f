package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"storefront/internal/config"
	"storefront/internal/middleware"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

const sseHeartbeat = 15 * time.Second

// /cart, /carts/:id のHTTP
type CartHandler struct {
	uc       *usecase.CartUsecase
	notifier *usecase.CartNotifier
}

// DI
func NewCartHandler(uc *usecase.CartUsecase, notifier *usecase.CartNotifier) *CartHandler {
	return &CartHandler{uc: uc, notifier: notifier}
}

type AddCartItemRequest struct {
	FileID     string `json:"file_id"`
	Quantity   int64  `json:"quantity"`
	Quality    string `json:"quality"`
	MaterialID string `json:"material_id"`
}

// 省略した項目は変更しない
type UpdateCartItemRequest struct {
	Quantity   *int64  `json:"quantity"`
	Quality    *string `json:"quality"`
	MaterialID *string `json:"material_id"`
}

type SelectShippingRequest struct {
	ShippingOptionID string `json:"shipping_option_id"`
}

func (h *CartHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	//カタログは誰でも見られる
	e.GET("/catalog", h.catalog)

	auth := middleware.AuthJWT(cfg)
	e.GET("/cart", h.getActiveCart, auth)

	g := e.Group("/carts/:id")
	g.Use(auth)

	g.GET("", h.getCart)
	g.GET("/status", h.status)
	g.GET("/events", h.events)
	g.POST("/items", h.addItem)
	g.PATCH("/items/:fileId", h.patchItem)
	g.DELETE("/items/:fileId", h.deleteItem)
	g.POST("/addons/:addonId/toggle", h.toggleAddon)
	g.PUT("/shipping", h.selectShipping)
}

func (h *CartHandler) catalog(c echo.Context) error {
	out, err := h.uc.Catalog(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) getActiveCart(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	out, err := h.uc.GetActiveCart(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) getCart(c echo.Context) error {
	userID, cartID, ok := h.ids(c)
	if !ok {
		return nil
	}

	out, err := h.uc.GetCart(c.Request().Context(), userID, cartID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) status(c echo.Context) error {
	userID, cartID, ok := h.ids(c)
	if !ok {
		return nil
	}

	out, err := h.uc.Status(c.Request().Context(), userID, cartID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) addItem(c echo.Context) error {
	userID, cartID, ok := h.ids(c)
	if !ok {
		return nil
	}

	var req AddCartItemRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.AddItem(c.Request().Context(), userID, cartID, usecase.AddItemInput{
		FileID:     req.FileID,
		Quantity:   req.Quantity,
		Quality:    req.Quality,
		MaterialID: req.MaterialID,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) patchItem(c echo.Context) error {
	userID, cartID, ok := h.ids(c)
	if !ok {
		return nil
	}

	var req UpdateCartItemRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.UpdateItem(c.Request().Context(), userID, cartID, c.Param("fileId"), usecase.UpdateItemInput{
		Quantity:   req.Quantity,
		Quality:    req.Quality,
		MaterialID: req.MaterialID,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) deleteItem(c echo.Context) error {
	userID, cartID, ok := h.ids(c)
	if !ok {
		return nil
	}

	out, err := h.uc.RemoveItem(c.Request().Context(), userID, cartID, c.Param("fileId"))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) toggleAddon(c echo.Context) error {
	userID, cartID, ok := h.ids(c)
	if !ok {
		return nil
	}

	out, err := h.uc.ToggleAddon(c.Request().Context(), userID, cartID, c.Param("addonId"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) selectShipping(c echo.Context) error {
	userID, cartID, ok := h.ids(c)
	if !ok {
		return nil
	}

	var req SelectShippingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.SelectShipping(c.Request().Context(), userID, cartID, req.ShippingOptionID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// Server-Sent Events。自分のカートのイベントだけ流す。
func (h *CartHandler) events(c echo.Context) error {
	userID, cartID, ok := h.ids(c)
	if !ok {
		return nil
	}

	ctx := c.Request().Context()

	//所有者チェック
	if _, err := h.uc.Status(ctx, userID, cartID); err != nil {
		return writeError(c, err)
	}

	ch, unsubscribe := h.notifier.Subscribe(cartID)
	defer unsubscribe()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := fmt.Fprint(res, ": ping\n\n"); err != nil {
				return nil
			}
			res.Flush()
		case ev, open := <-ch:
			if !open {
				return nil
			}
			b, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", ev.Type, b); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

// user_idと:idを取り出す。失敗時はレスポンスを書いてfalse。
func (h *CartHandler) ids(c echo.Context) (int64, int64, bool) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		_ = c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return 0, 0, false
	}
	cartID, ok := paramInt64(c, "id")
	if !ok {
		_ = c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
		return 0, 0, false
	}
	return userID, cartID, true
}
