package cache

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Config controls the query-surface HTTP response cache, grounded on
// redis_cache.go's CacheConfig.
type Config struct {
	Enabled         bool
	DefaultDuration time.Duration
	ExcludedPaths   []string
}

// HTTPMiddleware caches successful GET responses in Redis, keyed by
// path+query, exactly as redis_cache.go does for the api-gateway.
func (c *RedisCache) HTTPMiddleware(cfg Config) gin.HandlerFunc {
	excluded := make(map[string]struct{}, len(cfg.ExcludedPaths))
	for _, p := range cfg.ExcludedPaths {
		excluded[p] = struct{}{}
	}

	return func(ctx *gin.Context) {
		if !cfg.Enabled || ctx.Request.Method != http.MethodGet {
			ctx.Next()
			return
		}
		if _, skip := excluded[ctx.Request.URL.Path]; skip {
			ctx.Next()
			return
		}

		key := c.Key(ctx.Request.URL.Path, ctx.Request.URL.RawQuery)

		var cached []byte
		if c.GetJSON(ctx.Request.Context(), key, &cached) {
			ctx.Writer.Header().Set("Content-Type", "application/json")
			ctx.Writer.Header().Set("X-Cache", "HIT")
			ctx.Writer.WriteHeader(http.StatusOK)
			ctx.Writer.Write(cached)
			ctx.Abort()
			return
		}

		rw := &capturingWriter{ResponseWriter: ctx.Writer, body: &bytes.Buffer{}}
		ctx.Writer = rw
		ctx.Next()

		if ctx.Writer.Status() == http.StatusOK {
			c.SetJSON(ctx.Request.Context(), key, rw.body.Bytes(), cfg.DefaultDuration)
		}
	}
}

type capturingWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *capturingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}
