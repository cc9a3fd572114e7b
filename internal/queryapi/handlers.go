// Package queryapi exposes the out-of-scope-but-specified HTTP query
// surface (spec §4.8, §6) and the operator-control endpoints (§6),
// grounded on cmd/server/main.go's route-group wiring and
// internal/handler/market_data_handler.go's handler shape.
package queryapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/tradingplatform/candlearchiver/internal/gapfill"
	"github.com/tradingplatform/candlearchiver/internal/ingestion"
	"github.com/tradingplatform/candlearchiver/internal/model"
	"github.com/tradingplatform/candlearchiver/internal/realtime"
	"github.com/tradingplatform/candlearchiver/internal/rsi"
	"github.com/tradingplatform/candlearchiver/internal/store"
)

const defaultCandleLimit = 5000

// Handlers bundles the dependencies the HTTP surface needs.
type Handlers struct {
	Store    store.Store
	Engine   *ingestion.Engine
	Filler   *gapfill.Filler
	RSICache *rsi.Cache
	Merger   *realtime.Merger
	Provider string
	Logger   *zap.Logger
	validate *validator.Validate
}

func New(h Handlers) *Handlers {
	h.validate = validator.New()
	return &h
}

// candlesQuery mirrors spec §4.8's candles(symbol, tf, start?, end?, limit=5000).
type candlesQuery struct {
	Symbol    string `form:"symbol" validate:"required"`
	Timeframe string `form:"timeframe" validate:"required"`
	Start     *int64 `form:"start"`
	End       *int64 `form:"end"`
	Limit     int    `form:"limit"`
}

// Candles handles GET /candles.
func (h *Handlers) Candles(c *gin.Context) {
	var q candlesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.validate.Struct(q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if q.Limit <= 0 {
		q.Limit = defaultCandleLimit
	}

	key := model.SeriesKey{Provider: h.Provider, Symbol: q.Symbol, Timeframe: q.Timeframe}
	candles, err := h.Store.RangeQuery(c.Request.Context(), key, q.Start, q.End, q.Limit)
	if err != nil {
		h.Logger.Error("candles query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, candles)
}

// Status handles GET /status: exposes the TimeframeStatus for a series.
func (h *Handlers) Status(c *gin.Context) {
	symbol := c.Query("symbol")
	timeframe := c.Query("timeframe")
	if symbol == "" || timeframe == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol and timeframe are required"})
		return
	}
	key := model.SeriesKey{Provider: h.Provider, Symbol: symbol, Timeframe: timeframe}
	status, err := h.Store.GetStatus(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if status == nil {
		c.JSON(http.StatusOK, gin.H{"state": "unknown"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// RSI handles GET /rsi.
func (h *Handlers) RSI(c *gin.Context) {
	symbol := c.Query("symbol")
	timeframe := c.Query("timeframe")
	if symbol == "" || timeframe == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol and timeframe are required"})
		return
	}
	key := model.SeriesKey{Provider: h.Provider, Symbol: symbol, Timeframe: timeframe}
	points, err := h.RSICache.Series(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, points)
}

// ingestRequest mirrors spec §6's operator controls.
type ingestRequest struct {
	Symbols   []string `json:"symbols" validate:"required,min=1"`
	Timeframe string   `json:"timeframe" validate:"required"`
	StartDate string   `json:"startDate"`
	Force     bool     `json:"force"`
}

// Ingest handles POST /ingest: triggers an ingestion run for one or
// more symbols at a single timeframe.
func (h *Handlers) Ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var floorMs *int64
	if req.StartDate != "" {
		ms, err := parseFloorDate(req.StartDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		floorMs = &ms
	}

	opts := ingestion.Options{FloorMs: floorMs, Force: req.Force}
	summaries := make([]ingestion.Summary, 0, len(req.Symbols))
	for _, symbol := range req.Symbols {
		summary, err := h.Engine.Run(c.Request.Context(), symbol, req.Timeframe, opts)
		if err != nil {
			h.Logger.Error("ingestion run failed", zap.String("symbol", symbol), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "partial": summaries})
			return
		}
		summaries = append(summaries, summary)
	}
	c.JSON(http.StatusOK, summaries)
}

// Verify handles GET /verify: the supplemented "verify" operator
// control of spec §6. It reports the spacing anomalies of the full
// stored series via Filler.Verify and does not fill them.
func (h *Handlers) Verify(c *gin.Context) {
	symbol := c.Query("symbol")
	timeframe := c.Query("timeframe")
	if symbol == "" || timeframe == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol and timeframe are required"})
		return
	}
	key := model.SeriesKey{Provider: h.Provider, Symbol: symbol, Timeframe: timeframe}
	report, err := h.Filler.Verify(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

func parseFloorDate(s string) (int64, error) {
	return parseDateUTC(s)
}
