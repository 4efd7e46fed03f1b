package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pagepick/backend/internal/model"
	"github.com/pagepick/backend/internal/repository"
)

// SelectionHandler handles HTTP requests for saved selections.
type SelectionHandler struct {
	store repository.SelectionStore
}

// NewSelectionHandler creates a new SelectionHandler.
func NewSelectionHandler(store repository.SelectionStore) *SelectionHandler {
	return &SelectionHandler{store: store}
}

// SelectionResponse represents a saved selection in API responses.
type SelectionResponse struct {
	ID         string   `json:"id"`
	SourceURL  string   `json:"sourceUrl"`
	Selectors  []string `json:"selectors"`
	Attributes []string `json:"attributes"`
	CreatedAt  string   `json:"createdAt"`
}

func toSelectionResponse(s *model.SavedSelection) *SelectionResponse {
	return &SelectionResponse{
		ID:         s.ID,
		SourceURL:  s.SourceURL,
		Selectors:  s.Selectors,
		Attributes: s.Attributes,
		CreatedAt:  s.CreatedAt.Format(time.RFC3339),
	}
}

// Create handles POST /api/selections - persists a selection list.
func (h *SelectionHandler) Create(c *gin.Context) {
	var req model.SaveSelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	sel, err := repository.NewSavedSelection(&req)
	if err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	if err := h.store.Save(c.Request.Context(), sel); err != nil {
		sendError(c, http.StatusServiceUnavailable, "PERSISTENCE_ERROR", "Failed to save selection: "+err.Error())
		return
	}

	c.JSON(http.StatusCreated, toSelectionResponse(sel))
}

// List handles GET /api/selections - lists saved selections, optionally for one page (?url=).
func (h *SelectionHandler) List(c *gin.Context) {
	selections, err := h.store.List(c.Request.Context(), c.Query("url"))
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list selections: "+err.Error())
		return
	}

	response := make([]*SelectionResponse, len(selections))
	for i, sel := range selections {
		response[i] = toSelectionResponse(sel)
	}
	c.JSON(http.StatusOK, response)
}

// Get handles GET /api/selections/:id.
func (h *SelectionHandler) Get(c *gin.Context) {
	id := c.Param("id")

	sel, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, model.ErrSelectionNotFound) {
			sendError(c, http.StatusNotFound, "SELECTION_NOT_FOUND", "Selection "+id+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get selection: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, toSelectionResponse(sel))
}

// Delete handles DELETE /api/selections/:id.
func (h *SelectionHandler) Delete(c *gin.Context) {
	id := c.Param("id")

	if err := h.store.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, model.ErrSelectionNotFound) {
			sendError(c, http.StatusNotFound, "SELECTION_NOT_FOUND", "Selection "+id+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete selection: "+err.Error())
		return
	}

	c.Status(http.StatusNoContent)
}

// RegisterRoutes registers the selection routes on a Gin router group.
func (h *SelectionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	selections := rg.Group("/selections")
	{
		selections.POST("", h.Create)
		selections.GET("", h.List)
		selections.GET("/:id", h.Get)
		selections.DELETE("/:id", h.Delete)
	}
}
