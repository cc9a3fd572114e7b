package queryapi

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tradingplatform/candlearchiver/internal/cache"
)

// RegisterRoutes wires the query surface, operator controls and
// realtime WebSocket endpoint, grounded on cmd/server/main.go's
// setupRouter route-group layout.
func RegisterRoutes(router *gin.Engine, h *Handlers, responseCache *cache.RedisCache, cacheTTL time.Duration) {
	v1 := router.Group("/api/v1/market-data")

	// Only the /candles range query goes through the response cache.
	candlesChain := []gin.HandlerFunc{h.Candles}
	if responseCache != nil {
		candlesChain = append([]gin.HandlerFunc{responseCache.HTTPMiddleware(cache.Config{
			Enabled:         true,
			DefaultDuration: cacheTTL,
		})}, candlesChain...)
	}

	v1.GET("/candles", candlesChain...)
	v1.GET("/status", h.Status)
	v1.GET("/rsi", h.RSI)
	v1.GET("/verify", h.Verify)
	v1.POST("/ingest", h.Ingest)
	v1.GET("/ws", h.ServeWS)
}
