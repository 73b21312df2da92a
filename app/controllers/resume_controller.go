package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hirewireapp/hirewire/app/models"
	"github.com/hirewireapp/hirewire/internal/pkg/database"
	"github.com/hirewireapp/hirewire/internal/pkg/jobqueue"
	"github.com/hirewireapp/hirewire/internal/pkg/ledger"
	"github.com/hirewireapp/hirewire/internal/pkg/middleware"
)

type createResumeRequest struct {
	FileName      string `json:"file_name" validate:"required,max=255"`
	CandidateName string `json:"candidate_name" validate:"max=150"`
}

// HandleCreateResume accepts a resume for asynchronous processing. Credits
// are authorized up front (402 on insufficiency) and charged by the worker
// only after processing succeeds.
func HandleCreateResume(c *fiber.Ctx) error {
	org := middleware.OrganizationFromContext(c)
	if org == nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing organization context")
	}

	var req createResumeRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return validationError(c, err)
	}

	auth, err := guard.Authorize(c.Context(), org.ID, models.ActionResumeProcessing)
	if err != nil {
		if ice, ok := ledger.IsInsufficientCredits(err); ok {
			return paymentRequired(c, ice)
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Credit authorization failed")
	}

	resume := &models.Resume{
		PublicID:       uuid.New().String(),
		OrganizationID: org.ID,
		FileName:       req.FileName,
		CandidateName:  req.CandidateName,
		Status:         models.ResumeStatusPending,
	}
	if err := database.GetDB().WithContext(c.Context()).Create(resume).Error; err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to store resume")
	}

	payload := jobqueue.ResumeProcessingJobPayload{
		ResumeID:       resume.ID,
		ResumePublicID: resume.PublicID,
		OrganizationID: org.ID,
		ActionType:     auth.ActionType,
		AuthorizedPool: auth.Pool,
		AuthorizedCost: auth.Cost,
	}
	if _, err := queueManager.GetQueue().EnqueueJob(jobqueue.JobTypeResumeProcessing, payload.ToMap()); err != nil {
		log.Errorf("[Resume] failed to enqueue processing for %s: %v", resume.PublicID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to enqueue processing")
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"resume_id": resume.PublicID,
		"status":    resume.Status,
		"pool":      auth.Pool,
		"cost":      auth.Cost,
	})
}

// HandleGetResume returns one resume by its public id.
func HandleGetResume(c *fiber.Ctx) error {
	org := middleware.OrganizationFromContext(c)
	if org == nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing organization context")
	}

	var resume models.Resume
	err := database.GetDB().WithContext(c.Context()).
		Where("public_id = ? AND organization_id = ?", c.Params("id"), org.ID).
		First(&resume).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "Resume not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load resume")
	}

	return c.JSON(resume)
}
