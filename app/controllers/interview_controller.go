package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/hirewireapp/hirewire/app/models"
	"github.com/hirewireapp/hirewire/internal/pkg/database"
	"github.com/hirewireapp/hirewire/internal/pkg/ledger"
	"github.com/hirewireapp/hirewire/internal/pkg/middleware"
)

type scheduleInterviewRequest struct {
	CandidateName string `json:"candidate_name" validate:"required,min=2,max=150"`
	ScheduledAt   string `json:"scheduled_at" validate:"required"`
}

// HandleScheduleInterview schedules an interview. The operation is
// synchronous: credits are authorized, the interview is written, and the
// charge is committed in-request per the configured failure policy.
func HandleScheduleInterview(c *fiber.Ctx) error {
	org := middleware.OrganizationFromContext(c)
	if org == nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing organization context")
	}

	var req scheduleInterviewRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return validationError(c, err)
	}
	scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", "scheduled_at must be RFC 3339")
	}
	if scheduledAt.Before(time.Now()) {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", "scheduled_at must be in the future")
	}

	auth, err := guard.Authorize(c.Context(), org.ID, models.ActionInterviewScheduling)
	if err != nil {
		if ice, ok := ledger.IsInsufficientCredits(err); ok {
			return paymentRequired(c, ice)
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Credit authorization failed")
	}

	interview := &models.Interview{
		PublicID:       uuid.New().String(),
		OrganizationID: org.ID,
		CandidateName:  req.CandidateName,
		ScheduledAt:    scheduledAt,
		Status:         models.InterviewStatusScheduled,
	}
	if err := database.GetDB().WithContext(c.Context()).Create(interview).Error; err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to store interview")
	}

	if err := guard.Commit(c.Context(), org.ID, auth, interview.PublicID); err != nil {
		// Only possible under the FailOperation policy; the interview stays
		// scheduled but the client learns the charge did not go through.
		return jsonError(c, fiber.StatusConflict, "charge_failed", "Interview scheduled but the credit charge failed")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"interview_id": interview.PublicID,
		"status":       interview.Status,
		"scheduled_at": interview.ScheduledAt.UTC().Format(time.RFC3339),
		"pool":         auth.Pool,
		"cost":         auth.Cost,
	})
}
