package controllers

import (
	"context"
	"errors"
	"net/http"

	"codeclaim/internal/models"
	"codeclaim/internal/services"

	"github.com/gin-gonic/gin"
)

const defaultLogsLimit = 20

type LogProvider interface {
	GetLogs(ctx context.Context, q services.LogQuery) ([]models.Log, error)
	TruncateLogs(ctx context.Context) (int, error)
}

// LogsController serves the audit trail under the admin group, so every
// request has already passed RequireAdmin.
type LogsController struct {
	service LogProvider
}

type DeleteLogsResponse struct {
	Deleted int `json:"deleted"`
}

func NewLogsController(service LogProvider) (*LogsController, error) {
	if service == nil {
		return nil, errors.New("log service is nil")
	}

	return &LogsController{service: service}, nil
}

func (c *LogsController) RegisterRoutes(router gin.IRouter) error {
	if c == nil {
		return errors.New("logs controller is nil")
	}
	if router == nil {
		return errors.New("router is nil")
	}

	router.GET("/logs", c.getLogs)
	router.DELETE("/logs", c.deleteLogs)
	return nil
}

// getLogs accepts n, eventId (or event_id), action and outcome, e.g.
// /admin/logs?action=claim&outcome=fail to list rejected claims.
func (c *LogsController) getLogs(ctx *gin.Context) {
	limit, err := parseLimit(ctx, defaultLogsLimit)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid logs limit"})
		return
	}

	logs, err := c.service.GetLogs(ctx.Request.Context(), services.LogQuery{
		Limit:   limit,
		EventID: parseLogsEventID(ctx),
		Action:  ctx.Query("action"),
		Outcome: ctx.Query("outcome"),
	})
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to load logs"})
		return
	}

	ctx.JSON(http.StatusOK, logs)
}

func (c *LogsController) deleteLogs(ctx *gin.Context) {
	deleted, err := c.service.TruncateLogs(ctx.Request.Context())
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to delete logs"})
		return
	}

	ctx.JSON(http.StatusOK, DeleteLogsResponse{Deleted: deleted})
}

func parseLogsEventID(ctx *gin.Context) string {
	eventID := ctx.Query("eventId")
	if eventID == "" {
		eventID = ctx.Query("event_id")
	}
	return eventID
}
