package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/pushp314/chhattisgarhshadi-backend-sub000/internal/presence"
	"go.uber.org/zap"
)

var (
	errMissingGatewayHandler = errors.New("server: gateway handler dependency required")
	errMissingRegistry       = errors.New("server: presence registry dependency required")
)

// Dependencies wires the HTTP surface of the relay.
type Dependencies struct {
	GatewayHandler gin.HandlerFunc
	Registry       *presence.Registry
	Logger         *zap.Logger
}

// NewHTTPHandler builds the router: the websocket handshake endpoint, a health
// probe, and a presence query used by the main backend's profile pages.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.GatewayHandler == nil {
		return nil, errMissingGatewayHandler
	}
	if deps.Registry == nil {
		return nil, errMissingRegistry
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{registry: deps.Registry, logger: logger}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/ws", deps.GatewayHandler)
	router.GET("/presence/:userID", handler.handlePresence)

	return router, nil
}

type httpHandler struct {
	registry *presence.Registry
	logger   *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type presenceResponsePayload struct {
	UserID      string `json:"user_id"`
	Online      bool   `json:"online"`
	Connections int    `json:"connections"`
}

func (h *httpHandler) handlePresence(c *gin.Context) {
	userID := c.Param("userID")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	c.JSON(http.StatusOK, presenceResponsePayload{
		UserID:      userID,
		Online:      h.registry.IsOnline(userID),
		Connections: len(h.registry.Connections(userID)),
	})
}
