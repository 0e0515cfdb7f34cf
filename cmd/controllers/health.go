package controllers

import (
	"errors"
	"net/http"

	"codeclaim/internal/services"

	"github.com/gin-gonic/gin"
)

type StatsProvider interface {
	Stats() services.Stats
}

type HealthResponse struct {
	Status            string `json:"status"`
	EligibilityLoaded bool   `json:"eligibility_loaded"`
	PendingFlushes    int    `json:"pending_flushes"`
}

func RegisterHealthRoutes(router gin.IRouter, engine StatsProvider) error {
	if router == nil {
		return errors.New("router is nil")
	}
	if engine == nil {
		return errors.New("stats provider is nil")
	}

	router.GET("/health", HealthHandler(engine))
	return nil
}

// HealthHandler always answers 200 while the process serves requests; the
// body tells whether claims can be issued.
func HealthHandler(engine StatsProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := engine.Stats()
		c.JSON(http.StatusOK, HealthResponse{
			Status:            "ok",
			EligibilityLoaded: stats.Loaded,
			PendingFlushes:    stats.Pending,
		})
	}
}
