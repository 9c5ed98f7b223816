package server

import (
	"path/filepath"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chaos-io/clearbg/config"
)

const multipartMemory = 32 << 20

// NewRouter 组装路由与中间件
//
//	GET  /health
//	POST /api/remove-bg
//	POST /api/remove-bg-batch
//	GET  /static/*, GET / （配置了 STATIC_DIR 时）
func NewRouter(cfg *config.Config, processor ImageProcessor, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.MaxMultipartMemory = multipartMemory
	r.Use(RequestID(), Logger(logger), Recovery(logger), CORS(cfg.CORSOrigins))

	h := NewHandler(processor, logger)
	r.GET("/health", h.Health)

	api := r.Group("/api", RateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))
	api.POST("/remove-bg", h.RemoveBackground)
	api.POST("/remove-bg-batch", h.RemoveBackgroundBatch)

	if cfg.StaticDir != "" {
		r.Static("/static", cfg.StaticDir)
		r.StaticFile("/", filepath.Join(cfg.StaticDir, "index.html"))
	}

	return r
}
