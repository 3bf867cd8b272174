package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/leafcheck/internal/web"
)

// NewRouter builds the Gin engine with templates, static assets,
// request logging and all routes.
func NewRouter(deps Deps) *gin.Engine {
	router := gin.New()
	router.Use(requestLogger(deps.Logger), gin.Recovery())
	router.MaxMultipartMemory = DefaultMaxUploadSize
	router.SetHTMLTemplate(web.Templates)
	router.StaticFS("/static", http.FS(web.StaticFS))

	RegisterRoutes(router, deps)
	return router
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
