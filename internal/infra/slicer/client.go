// Package slicer は外部スライスサービスのHTTPクライアント
package slicer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/external"
	"storefront/internal/infra/httpjson"
)

type Client struct {
	http *httpjson.Client
}

var _ external.Slicer = (*Client)(nil)

func NewClient(baseURL string) *Client {
	return &Client{http: httpjson.New(baseURL, 10*time.Second)}
}

type submitRequest struct {
	FileID  string `json:"file_id"`
	FileURL string `json:"file_url"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

type statusResponse struct {
	Status string   `json:"status"` // pending / success / error
	Mass   *float64 `json:"mass_grams"`
	DimX   float64  `json:"dim_x"`
	DimY   float64  `json:"dim_y"`
	DimZ   float64  `json:"dim_z"`
	Error  string   `json:"error"`
}

func (c *Client) Submit(ctx context.Context, fileID string, blobURL string) (string, error) {
	var out submitResponse
	if err := c.http.Do(ctx, http.MethodPost, "/jobs", submitRequest{FileID: fileID, FileURL: blobURL}, &out); err != nil {
		return "", err
	}
	if out.JobID == "" {
		return "", fmt.Errorf("submit %s: empty job id", fileID)
	}
	return out.JobID, nil
}

func (c *Client) QueryStatus(ctx context.Context, fileID string, jobID string) (model.FileState, error) {
	var out statusResponse
	path := "/jobs/" + url.PathEscape(jobID) + "?file_id=" + url.QueryEscape(fileID)
	if err := c.http.Do(ctx, http.MethodGet, path, nil, &out); err != nil {
		var se *httpjson.StatusError
		if errors.As(err, &se) && se.Status == http.StatusNotFound {
			return nil, external.ErrJobNotFound
		}
		return nil, err
	}
	return out.state()
}

func (r statusResponse) state() (model.FileState, error) {
	switch r.Status {
	case "pending", "queued", "running":
		return model.Unsliced{}, nil
	case "success":
		if r.Mass == nil || *r.Mass < 0 {
			return model.Failed{Detail: "slicer returned no mass"}, nil
		}
		return model.Sliced{
			MassGrams:  *r.Mass,
			Dimensions: model.Dimensions{X: r.DimX, Y: r.DimY, Z: r.DimZ},
		}, nil
	case "error":
		detail := r.Error
		if detail == "" {
			detail = "slicing failed"
		}
		return model.Failed{Detail: detail}, nil
	default:
		return nil, fmt.Errorf("unknown slicing status %q", r.Status)
	}
}
