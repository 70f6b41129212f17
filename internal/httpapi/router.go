// Package httpapi serves the watchlist over HTTP for the web app.
package httpapi

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

func NewRouter(h *Handler, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/health", h.Health)

	wl := r.Group("/watchlist", RequireAccount())
	wl.GET("", h.ListWatchlist)
	wl.POST("", h.AddSymbol)
	wl.GET("/events", h.StreamEvents)
	wl.GET("/:symbol", h.GetSymbol)
	wl.DELETE("/:symbol", h.RemoveSymbol)

	return r
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
