package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pagepick/backend/internal/ws"
)

// WebSocketHandler handles viewer connections and relay inspection.
type WebSocketHandler struct {
	service *ws.Service
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(service *ws.Service) *WebSocketHandler {
	return &WebSocketHandler{service: service}
}

// Connect handles GET /ws - upgrades to the realtime selection protocol.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	// On failure the upgrader has already written the HTTP error.
	_ = h.service.Handler().HandleConnection(c.Writer, c.Request)
}

// ActivityResponse is the relay state returned by GET /api/activity.
type ActivityResponse struct {
	Clients int           `json:"clients"`
	Recent  []ws.Activity `json:"recent"`
}

// Activity handles GET /api/activity?limit=N - recently relayed frames.
func (h *WebSocketHandler) Activity(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	c.JSON(http.StatusOK, ActivityResponse{
		Clients: h.service.ClientCount(),
		Recent:  h.service.Hub().Activity(limit),
	})
}

// RegisterRoutes registers the WebSocket endpoint on the root router and the
// activity route on the API group.
func (h *WebSocketHandler) RegisterRoutes(r gin.IRoutes, api *gin.RouterGroup) {
	r.GET("/ws", h.Connect)
	api.GET("/activity", h.Activity)
}
