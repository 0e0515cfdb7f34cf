package controllers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"codeclaim/internal/models"
	"codeclaim/internal/services"

	"github.com/gin-gonic/gin"
)

const (
	AdminPasswordHeader = "X-Admin-Password"
	defaultClaimsLimit  = 5
	xlsxContentType     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type Authenticator interface {
	Authenticate(ctx context.Context, input string) bool
	Attempts() int
}

type AdminProvider interface {
	Stats() services.Stats
	Reload(ctx context.Context) (services.ReloadResult, error)
	FlushPending(ctx context.Context) (services.FlushReport, error)
	RecentClaims(n int) []models.ClaimRecord
	ExportClaimLog(ctx context.Context) ([]byte, error)
	ExportEligibility(ctx context.Context) ([]byte, error)
}

type AdminController struct {
	service AdminProvider
	now     func() time.Time
}

type ReloadResponse struct {
	services.ReloadResult
	Error string `json:"error,omitempty"`
}

type FlushResponse struct {
	services.FlushReport
	Error string `json:"error,omitempty"`
}

type ClaimsResponse struct {
	Claims []models.ClaimRecord `json:"claims"`
}

// RequireAdmin rejects requests whose X-Admin-Password header does not
// match the gate's secret.
func RequireAdmin(gate Authenticator) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if gate == nil || !gate.Authenticate(ctx.Request.Context(), ctx.GetHeader(AdminPasswordHeader)) {
			attempts := 0
			if gate != nil {
				attempts = gate.Attempts()
			}
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: fmt.Sprintf("密码错误！已尝试 %d 次", attempts)})
			return
		}
		ctx.Next()
	}
}

func NewAdminController(service AdminProvider) (*AdminController, error) {
	if service == nil {
		return nil, errors.New("allocation service is nil")
	}

	return &AdminController{service: service, now: time.Now}, nil
}

// RegisterRoutes mounts the admin endpoints on router, which is expected to
// be a group already guarded by RequireAdmin.
func (c *AdminController) RegisterRoutes(router gin.IRouter) error {
	if c == nil {
		return errors.New("admin controller is nil")
	}
	if router == nil {
		return errors.New("router is nil")
	}

	router.GET("/stats", c.stats)
	router.POST("/reload", c.reload)
	router.POST("/flush", c.flush)
	router.GET("/claims", c.recentClaims)
	router.GET("/claims/export", c.exportClaims)
	router.GET("/eligibility/export", c.exportEligibility)
	return nil
}

func (c *AdminController) stats(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, c.service.Stats())
}

func (c *AdminController) reload(ctx *gin.Context) {
	result, err := c.service.Reload(ctx.Request.Context())
	if err != nil {
		ctx.JSON(statusFor(err), ReloadResponse{ReloadResult: result, Error: services.Message(err)})
		return
	}

	ctx.JSON(http.StatusOK, ReloadResponse{ReloadResult: result})
}

func (c *AdminController) flush(ctx *gin.Context) {
	report, err := c.service.FlushPending(ctx.Request.Context())
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, FlushResponse{FlushReport: report, Error: err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, FlushResponse{FlushReport: report})
}

func (c *AdminController) recentClaims(ctx *gin.Context) {
	limit, err := parseLimit(ctx, defaultClaimsLimit)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid claims limit"})
		return
	}

	claims := c.service.RecentClaims(limit)
	if claims == nil {
		claims = []models.ClaimRecord{}
	}
	ctx.JSON(http.StatusOK, ClaimsResponse{Claims: claims})
}

func (c *AdminController) exportClaims(ctx *gin.Context) {
	content, err := c.service.ExportClaimLog(ctx.Request.Context())
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to export claim log"})
		return
	}
	if content == nil {
		ctx.JSON(http.StatusNotFound, ErrorResponse{Error: "暂无领取记录"})
		return
	}

	c.sendWorkbook(ctx, "领取记录", content)
}

func (c *AdminController) exportEligibility(ctx *gin.Context) {
	content, err := c.service.ExportEligibility(ctx.Request.Context())
	if err != nil {
		ctx.JSON(statusFor(err), ErrorResponse{Error: services.Message(err)})
		return
	}

	c.sendWorkbook(ctx, "主数据", content)
}

func (c *AdminController) sendWorkbook(ctx *gin.Context, prefix string, content []byte) {
	name := fmt.Sprintf("%s_%s.xlsx", prefix, c.now().Format("20060102_150405"))
	ctx.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(name))
	ctx.Data(http.StatusOK, xlsxContentType, content)
}

func parseLimit(ctx *gin.Context, fallback int) (int, error) {
	value := ctx.Query("n")
	if value == "" {
		return fallback, nil
	}

	limit, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	if limit <= 0 {
		return 0, errors.New("limit must be positive")
	}

	return limit, nil
}
