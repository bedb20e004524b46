package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	internalmiddleware "github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

type timetableService interface {
	Generate(ctx context.Context, req dto.GenerateTimetableRequest, actorID string) (*dto.TimetableResponse, error)
	CheckFeasibility(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.FeasibilityResponse, error)
	Submit(ctx context.Context, req dto.GenerateTimetableRequest, actorID string) (*dto.JobAcceptedResponse, error)
	Get(ctx context.Context, id string) (*dto.RunResponse, error)
	List(ctx context.Context, query dto.ListRunsQuery) ([]dto.RunSummary, *models.Pagination, error)
}

// TimetableHandler exposes timetable generation endpoints.
type TimetableHandler struct {
	service timetableService
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(svc timetableService) *TimetableHandler {
	return &TimetableHandler{service: svc}
}

// Generate godoc
// @Summary Generate a timetable
// @Description Runs the genetic search synchronously and returns the best schedule found within the time limit.
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.GenerateTimetableRequest true "Catalog and search options"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /timetables/generate [post]
func (h *TimetableHandler) Generate(c *gin.Context) {
	req, ok := bindTimetableRequest(c)
	if !ok {
		return
	}
	result, err := h.service.Generate(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil, map[string]interface{}{"cached": result.Cached})
}

// Feasibility godoc
// @Summary Check timetable feasibility
// @Description Compares weekly demand with classroom capacity and flags overloaded faculty or cohorts.
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.GenerateTimetableRequest true "Catalog"
// @Success 200 {object} response.Envelope
// @Router /timetables/feasibility [post]
func (h *TimetableHandler) Feasibility(c *gin.Context) {
	req, ok := bindTimetableRequest(c)
	if !ok {
		return
	}
	report, err := h.service.CheckFeasibility(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// SubmitJob godoc
// @Summary Queue a timetable generation
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.GenerateTimetableRequest true "Catalog and search options"
// @Success 202 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /timetables/jobs [post]
func (h *TimetableHandler) SubmitJob(c *gin.Context) {
	req, ok := bindTimetableRequest(c)
	if !ok {
		return
	}
	accepted, err := h.service.Submit(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, accepted.StatusURL, accepted)
}

// Get godoc
// @Summary Get a timetable run
// @Description Returns run status and progress; finished runs include the timetable.
// @Tags Timetables
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetables/{id} [get]
// @Router /timetables/jobs/{id} [get]
func (h *TimetableHandler) Get(c *gin.Context) {
	run, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run, nil)
}

// List godoc
// @Summary List timetable runs
// @Tags Timetables
// @Produce json
// @Param status query string false "QUEUED, PROCESSING, FINISHED or FAILED"
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /timetables [get]
func (h *TimetableHandler) List(c *gin.Context) {
	var query dto.ListRunsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	runs, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, runs, pagination)
}

func bindTimetableRequest(c *gin.Context) (dto.GenerateTimetableRequest, bool) {
	var req dto.GenerateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid timetable payload"))
		return req, false
	}
	return req, true
}

func actorID(c *gin.Context) string {
	if claims := internalmiddleware.CurrentClaims(c); claims != nil {
		return claims.UserID
	}
	return ""
}
