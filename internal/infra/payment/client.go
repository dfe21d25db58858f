// Package payment は決済サービスのHTTPクライアント
package payment

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"storefront/internal/external"
	"storefront/internal/infra/httpjson"
)

type Client struct {
	http *httpjson.Client
}

var _ external.PaymentService = (*Client)(nil)

func NewClient(baseURL string, apiKey string) *Client {
	c := httpjson.New(baseURL, 15*time.Second)
	c.Header.Set("Authorization", "Bearer "+apiKey)
	return &Client{http: c}
}

// 金額は文字列で送る（小数の誤差を避ける）
type sessionLine struct {
	CatalogEntryID string `json:"catalog_entry_id,omitempty"`
	Name           string `json:"name"`
	UnitPrice      string `json:"unit_price"`
	Quantity       int64  `json:"quantity"`
}

type sessionRequest struct {
	Reference     string        `json:"reference"`
	CustomerEmail string        `json:"customer_email"`
	Lines         []sessionLine `json:"lines"`
	AddonsTotal   string        `json:"addons_total"`
	Shipping      string        `json:"shipping"`
	Tax           string        `json:"tax"`
	Total         string        `json:"total"`
}

type sessionResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type catalogEntryRequest struct {
	Name string `json:"name"`
}

type catalogEntryResponse struct {
	ID string `json:"id"`
}

func (c *Client) CreateSession(ctx context.Context, req external.SessionRequest) (external.PaymentSession, error) {
	in := sessionRequest{
		Reference:     strconv.FormatInt(req.OrderID, 10),
		CustomerEmail: req.CustomerEmail,
		Lines:         make([]sessionLine, 0, len(req.Lines)),
		AddonsTotal:   req.AddonsTotal.StringFixed(2),
		Shipping:      req.Shipping.StringFixed(2),
		Tax:           req.Tax.StringFixed(2),
		Total:         req.Total.StringFixed(2),
	}
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, sessionLine{
			CatalogEntryID: l.CatalogEntryID,
			Name:           l.Name,
			UnitPrice:      l.UnitPrice.StringFixed(2),
			Quantity:       l.Quantity,
		})
	}

	var out sessionResponse
	if err := c.http.Do(ctx, http.MethodPost, "/sessions", in, &out); err != nil {
		return external.PaymentSession{}, err
	}
	if out.ID == "" || out.URL == "" {
		return external.PaymentSession{}, fmt.Errorf("create session for order %d: incomplete response", req.OrderID)
	}
	return external.PaymentSession{ID: out.ID, RedirectURL: out.URL}, nil
}

func (c *Client) ExpireSession(ctx context.Context, sessionID string) error {
	return c.http.Do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/expire", nil, nil)
}

func (c *Client) CreateCatalogEntry(ctx context.Context, name string) (string, error) {
	var out catalogEntryResponse
	if err := c.http.Do(ctx, http.MethodPost, "/catalog", catalogEntryRequest{Name: name}, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("create catalog entry %q: empty id", name)
	}
	return out.ID, nil
}

func (c *Client) DeleteCatalogEntry(ctx context.Context, id string) error {
	return c.http.Do(ctx, http.MethodDelete, "/catalog/"+url.PathEscape(id), nil, nil)
}
