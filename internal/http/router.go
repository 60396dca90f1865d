package http

import (
	"github.com/gin-gonic/gin"

	httpH "github.com/coursepilot/coursepilot-backend/internal/http/handlers"
	httpMW "github.com/coursepilot/coursepilot-backend/internal/http/middleware"
)

type RouterConfig struct {
	CourseGenHandler *httpH.CourseGenHandler
	HealthHandler    *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.Default()
	r.Use(httpMW.CORS())

	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api/v1")
	{
		if cfg.CourseGenHandler != nil {
			api.POST("/courses", cfg.CourseGenHandler.Create)
			api.GET("/courses/:id/status", cfg.CourseGenHandler.Status)
		}
	}

	return r
}
