package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/coursepilot/coursepilot-backend/internal/http/response"
	"github.com/coursepilot/coursepilot-backend/internal/platform/logger"
	"github.com/coursepilot/coursepilot-backend/internal/services"
)

type CourseGenHandler struct {
	log    *logger.Logger
	intake services.IntakeService
}

func NewCourseGenHandler(log *logger.Logger, intake services.IntakeService) *CourseGenHandler {
	return &CourseGenHandler{
		log:    log.With("handler", "CourseGenHandler"),
		intake: intake,
	}
}

type createCourseRequest struct {
	UserID        uuid.UUID `json:"user_id" binding:"required"`
	Query         string    `json:"query" binding:"required"`
	TargetMinutes int       `json:"target_minutes" binding:"required"`
}

func (h *CourseGenHandler) Create(c *gin.Context) {
	var req createCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	courseID, err := h.intake.Create(c.Request.Context(), req.UserID, req.Query, req.TargetMinutes)
	if err != nil {
		h.log.Error("Create course generation failed", "error", err, "user_id", req.UserID)
		response.RespondError(c, http.StatusInternalServerError, "create_failed", err)
		return
	}
	response.RespondAccepted(c, gin.H{"course_id": courseID})
}

func (h *CourseGenHandler) Status(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_course_id", err)
		return
	}

	status, err := h.intake.GetStatus(c.Request.Context(), courseID)
	if errors.Is(err, services.ErrCourseNotFound) {
		response.RespondError(c, http.StatusNotFound, "course_not_found", err)
		return
	}
	if err != nil {
		h.log.Error("Status read failed", "error", err, "course_id", courseID)
		response.RespondError(c, http.StatusInternalServerError, "status_failed", err)
		return
	}
	response.RespondOK(c, status)
}
