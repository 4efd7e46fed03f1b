package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pagepick/backend/internal/fetch"
	"github.com/pagepick/backend/internal/model"
)

// PageHandler serves fetched pages for viewers to render.
type PageHandler struct {
	fetcher fetch.Fetcher
}

// NewPageHandler creates a new PageHandler.
func NewPageHandler(fetcher fetch.Fetcher) *PageHandler {
	return &PageHandler{fetcher: fetcher}
}

// Get handles GET /api/page?url= - returns the page HTML.
func (h *PageHandler) Get(c *gin.Context) {
	pageURL := c.Query("url")
	if pageURL == "" {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "url is required")
		return
	}

	page, err := h.fetcher.Fetch(c.Request.Context(), pageURL)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrInvalidURL):
			sendError(c, http.StatusBadRequest, "INVALID_URL", err.Error())
		case errors.Is(err, model.ErrEmptyDocument):
			sendError(c, http.StatusUnprocessableEntity, "EMPTY_DOCUMENT", err.Error())
		default:
			sendError(c, http.StatusBadGateway, "FETCH_FAILED", "Failed to fetch page: "+err.Error())
		}
		return
	}

	c.Header("X-Content-Type-Options", "nosniff")
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
}

// RegisterRoutes registers the page route on a Gin router group.
func (h *PageHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/page", h.Get)
}
