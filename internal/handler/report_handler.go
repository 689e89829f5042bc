package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/campushub/institute-api/internal/middleware"
	"github.com/campushub/institute-api/internal/service"
	appErrors "github.com/campushub/institute-api/pkg/errors"
	"github.com/campushub/institute-api/pkg/response"
)

// ReportHandler exposes attendance report endpoints.
type ReportHandler struct {
	reports *service.ReportService
	metrics *service.MetricsService
}

// NewReportHandler constructs ReportHandler.
func NewReportHandler(reports *service.ReportService, metrics *service.MetricsService) *ReportHandler {
	return &ReportHandler{reports: reports, metrics: metrics}
}

// Create godoc
// @Summary Queue an attendance report export
// @Tags Reports
// @Accept json
// @Produce json
// @Param payload body service.CreateReportRequest true "Report payload"
// @Success 202 {object} response.Envelope
// @Router /reports/attendance [post]
func (h *ReportHandler) Create(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	job, err := h.reports.Request(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordReportQueued()
	response.JSON(c, http.StatusAccepted, job, nil)
}

// Status godoc
// @Summary Report job status
// @Tags Reports
// @Produce json
// @Param id path string true "Report job ID"
// @Success 200 {object} response.Envelope
// @Router /reports/{id} [get]
func (h *ReportHandler) Status(c *gin.Context) {
	status, err := h.reports.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Download godoc
// @Summary Download a completed report
// @Tags Reports
// @Produce octet-stream
// @Param id path string true "Report job ID"
// @Param expires query int true "Link expiry"
// @Param sig query string true "Link signature"
// @Success 200 {file} binary
// @Router /reports/{id}/download [get]
func (h *ReportHandler) Download(c *gin.Context) {
	expires, err := strconv.ParseInt(c.Query("expires"), 10, 64)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid expiry"))
		return
	}
	path, err := h.reports.Open(c.Request.Context(), c.Param("id"), expires, c.Query("sig"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.FileAttachment(path, c.Param("id"))
}
