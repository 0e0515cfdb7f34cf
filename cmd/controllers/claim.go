package controllers

import (
	"context"
	"errors"
	"net/http"

	"codeclaim/internal/services"

	"github.com/gin-gonic/gin"
)

type ClaimProvider interface {
	Claim(ctx context.Context, req services.ClaimRequest) (services.ClaimResult, error)
}

type ClaimController struct {
	service ClaimProvider
}

type ClaimRequest struct {
	Phone string `json:"phone"`
}

func NewClaimController(service ClaimProvider) (*ClaimController, error) {
	if service == nil {
		return nil, errors.New("allocation service is nil")
	}

	return &ClaimController{service: service}, nil
}

func (c *ClaimController) RegisterRoutes(router gin.IRouter) error {
	if c == nil {
		return errors.New("claim controller is nil")
	}
	if router == nil {
		return errors.New("router is nil")
	}

	router.POST("/claim", c.claim)
	return nil
}

func (c *ClaimController) claim(ctx *gin.Context) {
	var req ClaimRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	result, err := c.service.Claim(ctx.Request.Context(), services.ClaimRequest{Phone: req.Phone})
	ctx.JSON(statusFor(err), result)
}
