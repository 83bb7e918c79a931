package medication

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/portal-api/internal/middleware"
	"github.com/jwalitptl/portal-api/internal/model"
	"github.com/jwalitptl/portal-api/internal/service/medication"
	apperrors "github.com/jwalitptl/portal-api/pkg/errors"
	"github.com/jwalitptl/portal-api/pkg/httputil"
	"github.com/jwalitptl/portal-api/pkg/validator"
)

type Handler struct {
	service  *medication.Service
	validate validator.Validator
}

func NewHandler(service *medication.Service) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	meds := rg.Group("/medications")
	{
		meds.POST("/schedules", h.CreateSchedule)
		meds.GET("/logs", h.ListLogs)
		meds.PATCH("/logs/:id", h.RecordDose)
		meds.POST("/logs/generate", h.GenerateLogs)
		meds.GET("/adherence", h.GetAdherence)
	}
}

func (h *Handler) CreateSchedule(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var req model.CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.NewValidation("body", err.Error()))
		return
	}
	if err := h.validate.Validate(&req); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	schedule, err := h.service.CreateSchedule(c.Request.Context(), actor, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithCreated(c, schedule)
}

func (h *Handler) ListLogs(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	filters, err := h.parseLogFilters(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	logs, err := h.service.ListLogs(c.Request.Context(), actor, filters)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, logs)
}

// RecordDose resolves one pending log as taken, missed or skipped.
func (h *Handler) RecordDose(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewValidation("id", "invalid log ID"))
		return
	}

	var req model.RecordDoseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.NewValidation("body", err.Error()))
		return
	}
	if err := h.validate.Validate(&req); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	log, err := h.service.RecordDose(c.Request.Context(), actor, id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, log)
}

// GenerateLogs runs an on-demand generation pass for a date. The background
// worker covers the normal case; this endpoint exists for backfills.
func (h *Handler) GenerateLogs(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	if actor.Role != model.RoleAdmin {
		httputil.RespondWithError(c, apperrors.NewPermission("only admins can trigger log generation"))
		return
	}

	date := time.Now()
	if d := c.Query("date"); d != "" {
		parsed, err := time.Parse("2006-01-02", d)
		if err != nil {
			httputil.RespondWithError(c, apperrors.NewValidation("date", "date must be YYYY-MM-DD"))
			return
		}
		date = parsed
	}

	inserted, err := h.service.GenerateDailyLogs(c.Request.Context(), date)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, gin.H{
		"date":     date.Format("2006-01-02"),
		"inserted": inserted,
	})
}

func (h *Handler) GetAdherence(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	filters, err := h.parseLogFilters(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	stats, err := h.service.AdherenceStats(c.Request.Context(), actor, filters)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, stats)
}

func (h *Handler) parseLogFilters(c *gin.Context) (*model.MedicationLogFilters, error) {
	filters := &model.MedicationLogFilters{}

	if id := c.Query("patient_id"); id != "" {
		patientID, err := uuid.Parse(id)
		if err != nil {
			return nil, apperrors.NewValidation("patient_id", "invalid patient ID")
		}
		filters.PatientID = patientID
	}

	if id := c.Query("schedule_id"); id != "" {
		scheduleID, err := uuid.Parse(id)
		if err != nil {
			return nil, apperrors.NewValidation("schedule_id", "invalid schedule ID")
		}
		filters.ScheduleID = scheduleID
	}

	if status := c.Query("status"); status != "" {
		s := model.LogStatus(status)
		if !s.IsValid() {
			return nil, apperrors.NewValidation("status", "unknown log status")
		}
		filters.Status = s
	}

	filters.Medication = c.Query("medication")

	// date is shorthand for an exact day; from/to override it when present
	if d := c.Query("date"); d != "" {
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			return nil, apperrors.NewValidation("date", "date must be YYYY-MM-DD")
		}
		filters.From = t
		filters.To = t
	}

	if from := c.Query("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			return nil, apperrors.NewValidation("from", "from must be YYYY-MM-DD")
		}
		filters.From = t
	}

	if to := c.Query("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			return nil, apperrors.NewValidation("to", "to must be YYYY-MM-DD")
		}
		filters.To = t
	}

	return filters, nil
}
