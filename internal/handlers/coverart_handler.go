package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/trackforge/backend/internal/middleware"
	"github.com/trackforge/backend/internal/services"
)

type CoverArtHandler struct {
	releaseService  *services.ReleaseService
	coverArtService *services.CoverArtService
}

func NewCoverArtHandler(releaseService *services.ReleaseService, coverArtService *services.CoverArtService) *CoverArtHandler {
	return &CoverArtHandler{
		releaseService:  releaseService,
		coverArtService: coverArtService,
	}
}

// UploadCoverArt runs the compliance check and, verdict permitting, stores
// the cover image
// POST /releases/:id/cover-art
// Multipart form: file (required)
func (h *CoverArtHandler) UploadCoverArt(c *gin.Context) {
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

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to open uploaded file"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read uploaded file"})
		return
	}

	result, err := h.coverArtService.ProcessCoverArt(c.Request.Context(), release, fileHeader.Filename, data)
	if err != nil {
		// Infrastructure failures are not the uploader's fault; local gates
		// (wrong type, oversize) are.
		if errors.Is(err, services.ErrComplianceUnavailable) || errors.Is(err, services.ErrCoverUploadFailed) {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// CoverArtChecklist returns the live compliance checklist
// GET /releases/:id/cover-art/checklist
func (h *CoverArtHandler) CoverArtChecklist(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	releaseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid release ID"})
		return
	}
	if _, err := h.releaseService.GetRelease(userID, releaseID); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.coverArtService.Checklist(releaseID))
}
