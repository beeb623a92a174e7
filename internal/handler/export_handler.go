package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mooc-session-miner/internal/service"
	appErrors "github.com/noah-isme/mooc-session-miner/pkg/errors"
	"github.com/noah-isme/mooc-session-miner/pkg/response"
)

type exportService interface {
	Export(ctx context.Context, req service.ExportRequest) (*service.ExportResult, error)
}

// ExportRequest is the body of a collection export.
type ExportRequest struct {
	Collection string                 `json:"collection" binding:"required"`
	Filter     map[string]interface{} `json:"filter"`
	Limit      int                    `json:"limit" binding:"gte=0"`
}

// ExportHandler exposes collection CSV exports.
type ExportHandler struct {
	exports exportService
}

// NewExportHandler constructs handler.
func NewExportHandler(exports exportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Create godoc
// @Summary Export a collection as CSV
// @Tags Exports
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body ExportRequest true "Export selection"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exports [post]
func (h *ExportHandler) Create(c *gin.Context) {
	var req ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export payload"))
		return
	}
	result, err := h.exports.Export(c.Request.Context(), service.ExportRequest{
		Collection: req.Collection,
		Filter:     req.Filter,
		Limit:      req.Limit,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}
