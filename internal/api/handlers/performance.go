package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/bikeshrana/tradingd/internal/core/loop"
	"github.com/bikeshrana/tradingd/internal/tickcache"
)

// PerformanceHandler reports Event Loop throughput, the Go equivalent of
// the original engine's processing_stats endpoint.
type PerformanceHandler struct {
	loop   *loop.Loop
	cache  tickcache.Cache
	logger zerolog.Logger
}

// NewPerformanceHandler wires the handler to the loop it reports on.
func NewPerformanceHandler(l *loop.Loop, c tickcache.Cache, logger zerolog.Logger) *PerformanceHandler {
	return &PerformanceHandler{loop: l, cache: c, logger: logger}
}

type performanceResponse struct {
	EventsProcessed     int64   `json:"eventsProcessed"`
	AvgProcessingTimeNs int64   `json:"avgProcessingTimeNs"`
	AvgProcessingTimeMs float64 `json:"avgProcessingTimeMs"`
	QueueDepth          int     `json:"queueDepth"`
	BookSize            int     `json:"bookSize"`
	CachedSymbols       int     `json:"cachedSymbols"`
}

// Handle handles GET /api/v1/performance.
func (h *PerformanceHandler) Handle(w http.ResponseWriter, r *http.Request) {
	stats := h.loop.Stats()

	cachedSymbols := 0
	if symbols, err := h.cache.Symbols(r.Context()); err != nil {
		h.logger.Warn().Err(err).Msg("tick cache symbol listing failed")
	} else {
		cachedSymbols = len(symbols)
	}

	writeJSON(w, h.logger, http.StatusOK, performanceResponse{
		EventsProcessed:     stats.EventsProcessed,
		AvgProcessingTimeNs: stats.AvgProcessingTimeNs,
		AvgProcessingTimeMs: float64(stats.AvgProcessingTimeNs) / 1e6,
		QueueDepth:          stats.QueueDepth,
		BookSize:            stats.BookSize,
		CachedSymbols:       cachedSymbols,
	})
}
