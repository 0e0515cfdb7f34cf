package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"codeclaim/internal/services"

	"github.com/gin-gonic/gin"
)

type stubClaimService struct {
	result services.ClaimResult
	err    error
	req    services.ClaimRequest
}

func (s *stubClaimService) Claim(ctx context.Context, req services.ClaimRequest) (services.ClaimResult, error) {
	s.req = req
	return s.result, s.err
}

func newClaimRouter(t *testing.T, service ClaimProvider) *gin.Engine {
	t.Helper()

	controller, err := NewClaimController(service)
	if err != nil {
		t.Fatalf("NewClaimController: %v", err)
	}
	router := gin.New()
	if err := controller.RegisterRoutes(router); err != nil {
		t.Fatalf("register claim routes: %v", err)
	}
	return router
}

func TestClaimHandlerSuccess(t *testing.T) {
	service := &stubClaimService{result: services.ClaimResult{Code: "842", Message: services.MsgClaimSuccess, EligibilitySaved: true, ClaimLogSaved: true}}
	router := newClaimRouter(t, service)

	recorder := serve(router, http.MethodPost, "/claim", `{"phone":"138 0013 8000"}`, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}
	if service.req.Phone != "138 0013 8000" {
		t.Fatalf("phone = %q, want %q", service.req.Phone, "138 0013 8000")
	}

	var resp services.ClaimResult
	if err := json.NewDecoder(recorder.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Code != "842" || resp.Message != "领取成功" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestClaimHandlerRejections(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "invalid phone", err: services.ErrInvalidPhoneFormat, want: http.StatusBadRequest},
		{name: "not eligible", err: services.ErrNotEligible, want: http.StatusNotFound},
		{name: "already claimed", err: services.ErrAlreadyClaimed, want: http.StatusConflict},
		{name: "invalid record", err: services.ErrInvalidRecordState, want: http.StatusUnprocessableEntity},
		{name: "not loaded", err: services.ErrNotLoaded, want: http.StatusServiceUnavailable},
		{name: "persistence", err: &services.PersistenceError{Target: services.TargetJournal, Err: errors.New("locked")}, want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &stubClaimService{result: services.ClaimResult{Message: services.Message(tt.err)}, err: tt.err}
			router := newClaimRouter(t, service)

			recorder := serve(router, http.MethodPost, "/claim", `{"phone":"13800138000"}`, nil)
			if recorder.Code != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, recorder.Code)
			}

			var resp services.ClaimResult
			if err := json.NewDecoder(recorder.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Message != services.Message(tt.err) || resp.Code != "" {
				t.Fatalf("unexpected response: %+v", resp)
			}
		})
	}
}

func TestClaimHandlerInvalidBody(t *testing.T) {
	service := &stubClaimService{}
	router := newClaimRouter(t, service)

	recorder := serve(router, http.MethodPost, "/claim", `{"phone":`, nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, recorder.Code)
	}
}

func TestNewClaimControllerNil(t *testing.T) {
	if _, err := NewClaimController(nil); err == nil {
		t.Fatalf("NewClaimController nil: expected error")
	}
}
