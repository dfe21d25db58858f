package handler

import (
	"io"
	"net/http"
	"strings"

	"storefront/internal/config"
	"storefront/internal/middleware"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /filesのHTTP
type FileHandler struct {
	uc       *usecase.FileUsecase
	maxBytes int64
}

func NewFileHandler(uc *usecase.FileUsecase, maxUploadBytes int64) *FileHandler {
	return &FileHandler{uc: uc, maxBytes: maxUploadBytes}
}

func (h *FileHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	g := e.Group("/files")
	g.Use(middleware.AuthJWT(cfg))

	g.POST("", h.upload)
	g.GET("", h.batch)
	g.GET("/:id", h.get)
	g.POST("/:id/reslice", h.reslice)
	g.DELETE("/:id", h.delete)
}

// multipartの"file"を受け取る
func (h *FileHandler) upload(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "file is required"})
	}
	if h.maxBytes > 0 && fh.Size > h.maxBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "file too large"})
	}

	src, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid file"})
	}
	defer src.Close()

	//サイズ超過はusecaseで判定するので1バイト余分に読む
	var r io.Reader = src
	if h.maxBytes > 0 {
		r = io.LimitReader(src, h.maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid file"})
	}

	out, err := h.uc.Ingest(c.Request().Context(), userID, usecase.IngestInput{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, out)
}

// ?ids=a,b,c
func (h *FileHandler) batch(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var ids []string
	for _, id := range strings.Split(c.QueryParam("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	out, err := h.uc.GetBatch(c.Request().Context(), userID, ids)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *FileHandler) get(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	out, err := h.uc.Get(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *FileHandler) reslice(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	out, err := h.uc.Reslice(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, out)
}

func (h *FileHandler) delete(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	out, err := h.uc.Delete(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
