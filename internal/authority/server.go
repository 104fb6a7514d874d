package authority

import (
	"net/http"
	"strings"
	"time"

	"ordersync/internal/broker"
	"ordersync/internal/importer"
	"ordersync/internal/models"
	"ordersync/internal/redisclient"
	"ordersync/internal/remote"
	"ordersync/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const idempotencyTTL = 24 * time.Hour

// Server is the reference remote authority: it arbitrates order versions,
// serves the warehouse snapshot and accepts bulk stock imports. Redis and
// the event publisher are optional; absent they degrade to no-ops.
type Server struct {
	store  *Store
	redis  *redisclient.Client
	events *broker.EventPublisher
	token  string
	logger *zap.Logger
}

// NewServer creates a new authority server. token is the bearer token
// devices must present; an empty token disables authentication.
func NewServer(store *Store, redis *redisclient.Client, events *broker.EventPublisher, token string) *Server {
	return &Server{
		store:  store,
		redis:  redis,
		events: events,
		token:  token,
		logger: util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (s *Server) SetupRoutes(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().Unix()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api", s.authMiddleware())
	{
		api.GET("/sync/pending-orders", s.listOrders)
		api.POST("/sync/pending-orders", s.pushOrders)
		api.DELETE("/sync/pending-orders/:id", s.deleteOrder)
		api.GET("/sync/warehouse-items", s.listWarehouseItems)
		api.POST("/admin/warehouse-items", s.importWarehouseItems)
	}
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.token == "" {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") || strings.TrimPrefix(header, "Bearer ") != s.token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid bearer token"})
			return
		}
		c.Next()
	}
}

func (s *Server) listOrders(c *gin.Context) {
	orders, err := s.store.ListOrders(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (s *Server) pushOrders(c *gin.Context) {
	var req struct {
		Orders []models.Order `json:"orders"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	ctx := c.Request.Context()

	// A replayed batch re-applies harmlessly (upserts are LWW-idempotent);
	// the dedup key only suppresses duplicate downstream events.
	batchSeen := false
	if batchKey := c.GetHeader("Idempotency-Key"); batchKey != "" && s.redis != nil {
		seen, err := s.redis.CheckIdempotencyKey(ctx, batchKey)
		if err != nil {
			s.logger.Warn("Idempotency check failed", zap.Error(err))
		} else {
			batchSeen = seen
		}
		if !seen {
			if err := s.redis.SetIdempotencyKey(ctx, batchKey, idempotencyTTL); err != nil {
				s.logger.Warn("Idempotency key store failed", zap.Error(err))
			}
		}
	}

	results := make([]remote.PushOutcome, 0, len(req.Orders))
	for i := range req.Orders {
		order := &req.Orders[i]
		applied, message, err := s.store.UpsertOrder(ctx, order)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		outcome := remote.PushOutcome{ID: order.ID, Outcome: remote.OutcomeSkipped, Message: message}
		if applied {
			outcome.Outcome = remote.OutcomeApplied
			outcome.Message = ""
			if !batchSeen {
				if err := s.events.PublishOrderReceived(ctx, order); err != nil {
					s.logger.Error("Failed to publish OrderReceived event", zap.Error(err))
				}
			}
		}
		results = append(results, outcome)
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) deleteOrder(c *gin.Context) {
	id := c.Param("id")
	found, deviceID, err := s.store.DeleteOrder(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}

	if err := s.events.PublishOrderDeleted(c.Request.Context(), id, deviceID); err != nil {
		s.logger.Error("Failed to publish OrderDeleted event", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (s *Server) listWarehouseItems(c *gin.Context) {
	items, err := s.store.ListWarehouseItems(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// importWarehouseItems accepts a CSV stock dump and replaces the
// authoritative snapshot with it.
func (s *Server) importWarehouseItems(c *gin.Context) {
	items, err := importer.ParseWarehouseCSV(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid import file", "details": err.Error()})
		return
	}

	if err := s.store.ReplaceWarehouseItems(c.Request.Context(), items); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.logger.Info("Warehouse snapshot imported", zap.Int("items", len(items)))
	c.JSON(http.StatusOK, gin.H{"imported": len(items)})
}
