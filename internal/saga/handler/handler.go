// Package handler exposes the saga HTTP endpoints: the streaming finalize
// operation and the run history listing.
package handler

import (
	"net/http"
	"strconv"

	"salesops_backend/internal/saga/service"
	"salesops_backend/internal/saga/stream"
	"salesops_backend/internal/saga/transport"
	"salesops_backend/platform/apperr"
	"salesops_backend/platform/httpkit"
	"salesops_backend/platform/logger"
	"salesops_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const defaultRunListLimit = 20

// Handler handles saga HTTP requests.
type Handler struct {
	svc      *service.Service
	validate *validator.Validator
	log      *logger.Logger
}

// NewHandler creates a saga handler.
func NewHandler(svc *service.Service, validate *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{svc: svc, validate: validate, log: log}
}

// RegisterRoutes registers the saga routes on the given group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/finalize", h.Finalize)
	rg.GET("/runs", h.ListRuns)
}

// Finalize runs the quote finalization saga and streams progress back as
// Server-Sent Events. Input problems are rejected with a JSON error before
// the stream opens; once it is open, all outcomes travel in-stream.
func (h *Handler) Finalize(c *gin.Context) {
	var req transport.FinalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid request body"))
		return
	}
	if err := h.validateRequest(req); err != nil {
		httpkit.HandleError(c, err)
		return
	}

	sink, err := stream.NewSSE(c.Writer)
	if err != nil {
		httpkit.Error(c, http.StatusInternalServerError, "streaming is not supported")
		return
	}

	h.svc.Run(c.Request.Context(), req, sink)
}

// ListRuns returns the persisted run history for a deal.
func (h *Handler) ListRuns(c *gin.Context) {
	dealID := c.Query("dealId")
	if dealID == "" {
		httpkit.HandleError(c, apperr.Validation("dealId is required"))
		return
	}

	limit := defaultRunListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			httpkit.HandleError(c, apperr.Validation("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	resp, err := h.svc.ListRuns(c.Request.Context(), dealID, limit)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

func (h *Handler) validateRequest(req transport.FinalizeRequest) error {
	if err := h.validate.Struct(req); err != nil {
		h.log.Warn("finalize request failed validation", "error", err.Error())
		return apperr.Validation("invalid finalize request: " + err.Error())
	}

	mains := 0
	for _, item := range req.LineItems {
		if item.IsMain {
			mains++
		}
	}
	if mains > 1 {
		return apperr.Validation("at most one line item may be flagged as main")
	}
	return nil
}
