package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mooc-session-miner/internal/models"
	appErrors "github.com/noah-isme/mooc-session-miner/pkg/errors"
	"github.com/noah-isme/mooc-session-miner/pkg/middleware/requestid"
	"github.com/noah-isme/mooc-session-miner/pkg/response"
)

type runService interface {
	Submit(ctx context.Context, req models.RunRequest) (*models.Run, error)
	Get(ctx context.Context, id string) (*models.Run, error)
	List(ctx context.Context) []models.Run
}

// RunHandler exposes the course run endpoints.
type RunHandler struct {
	runs runService
}

// NewRunHandler constructs handler.
func NewRunHandler(runs runService) *RunHandler {
	return &RunHandler{runs: runs}
}

// Submit godoc
// @Summary Queue a course run
// @Tags Runs
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.RunRequest true "Run manifest entry"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /runs [post]
func (h *RunHandler) Submit(c *gin.Context) {
	var req models.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid run payload"))
		return
	}
	run, err := h.runs.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	requestid.SetRun(c, run.ID)
	response.Accepted(c, run)
}

// Get godoc
// @Summary Course run status
// @Tags Runs
// @Produce json
// @Security BearerAuth
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /runs/{id} [get]
func (h *RunHandler) Get(c *gin.Context) {
	requestid.SetRun(c, c.Param("id"))
	run, err := h.runs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run, nil)
}

// List godoc
// @Summary List course runs, newest first
// @Tags Runs
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /runs [get]
func (h *RunHandler) List(c *gin.Context) {
	page, size, err := pagination(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	runs := h.runs.List(c.Request.Context())
	total := len(runs)
	start := total
	if page-1 <= total/size {
		start = (page - 1) * size
	}
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	response.JSON(c, http.StatusOK, runs[start:end], &models.Pagination{Page: page, PageSize: size, TotalCount: total})
}

func pagination(c *gin.Context) (int, int, error) {
	page, size := 1, 20
	if raw := c.Query("page"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return 0, 0, appErrors.Clone(appErrors.ErrValidation, "page must be a positive integer")
		}
		page = v
	}
	if raw := c.Query("page_size"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 100 {
			return 0, 0, appErrors.Clone(appErrors.ErrValidation, "page_size must be between 1 and 100")
		}
		size = v
	}
	return page, size, nil
}
