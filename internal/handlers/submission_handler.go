package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/trackforge/backend/internal/middleware"
	"github.com/trackforge/backend/internal/services"
)

type SubmissionHandler struct {
	releaseService    *services.ReleaseService
	submissionService *services.SubmissionService
}

func NewSubmissionHandler(releaseService *services.ReleaseService, submissionService *services.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{
		releaseService:    releaseService,
		submissionService: submissionService,
	}
}

// ValidateRelease runs the full submission gate without submitting
// GET /releases/:id/validation
func (h *SubmissionHandler) ValidateRelease(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	releaseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid release ID"})
		return
	}

	release, err := h.releaseService.GetRelease(userID, releaseID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	violations := h.submissionService.Validate(c.Request.Context(), release)
	c.JSON(http.StatusOK, gin.H{
		"submittable": len(violations) == 0,
		"violations":  violations,
	})
}

// SubmitRelease gates, assembles and ships the release
// POST /releases/:id/submit
func (h *SubmissionHandler) SubmitRelease(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	releaseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid release ID"})
		return
	}

	release, err := h.submissionService.Submit(c.Request.Context(), userID, releaseID)
	if err != nil {
		var notSubmittable *services.ErrNotSubmittable
		if errors.As(err, &notSubmittable) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":      "release is not submittable",
				"violations": notSubmittable.Violations,
			})
			return
		}
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, release)
}
