package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

type exportService interface {
	Export(ctx context.Context, runID string, format models.ExportFormat) (*dto.ExportResponse, error)
	ResolveDownload(ctx context.Context, token string) (*service.Download, error)
}

// ExportHandler renders timetables to files and streams them back.
type ExportHandler struct {
	service exportService
}

// NewExportHandler constructs the handler.
func NewExportHandler(svc exportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// Create godoc
// @Summary Export a finished timetable
// @Tags Exports
// @Produce json
// @Param id path string true "Run ID"
// @Param format query string false "csv (default) or pdf"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetables/{id}/exports [post]
func (h *ExportHandler) Create(c *gin.Context) {
	format := models.ExportFormat(strings.ToLower(c.DefaultQuery("format", string(models.ExportFormatCSV))))
	result, err := h.service.Export(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Download godoc
// @Summary Download an exported timetable via signed token
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /exports/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := c.Param("token")
	if strings.TrimSpace(token) == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	result, err := h.service.ResolveDownload(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.File.Close() //nolint:errcheck
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, result.Size, result.ContentType, result.File, nil)
}
