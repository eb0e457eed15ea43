package main

import (
	"net/http"
	"time"

	gmw "github.com/Laisky/gin-middlewares/v6"
	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nrbedrock/bedrock-observability/common/config"
	"github.com/nrbedrock/bedrock-observability/common/graceful"
	"github.com/nrbedrock/bedrock-observability/common/logger"
)

// newRouter serves the Prometheus metrics of gatherer and a health check.
func newRouter(gatherer prometheus.Gatherer) *gin.Engine {
	logLevel := glog.LevelInfo
	if config.DebugEnabled {
		logLevel = glog.LevelDebug
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		gmw.NewLoggerMiddleware(
			gmw.WithLevel(logLevel.String()),
			gmw.WithLogger(logger.Logger.Named("gin")),
		),
	)

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	router.GET("/healthz", func(c *gin.Context) {
		status := http.StatusOK
		if graceful.IsDraining() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"version":   config.Version,
			"in_flight": graceful.InFlight(),
			"draining":  graceful.IsDraining(),
		})
	})

	return router
}

func newMetricsServer(addr string, gatherer prometheus.Gatherer) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           newRouter(gatherer),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
