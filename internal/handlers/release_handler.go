package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/trackforge/backend/internal/middleware"
	"github.com/trackforge/backend/internal/models"
	"github.com/trackforge/backend/internal/services"
)

type ReleaseHandler struct {
	releaseService *services.ReleaseService
}

func NewReleaseHandler(releaseService *services.ReleaseService) *ReleaseHandler {
	return &ReleaseHandler{releaseService: releaseService}
}

// respondServiceError maps service errors onto HTTP statuses.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrReleaseNotFound),
		errors.Is(err, models.ErrTrackNotFound),
		errors.Is(err, models.ErrAudioFileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrReleaseSubmitted),
		errors.Is(err, models.ErrAudioAlreadyLinked),
		errors.Is(err, models.ErrSingleTrackOnly):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrPlanViolation):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

// CreateRelease opens a new draft
// POST /releases
// Body: {"format": "single|ep|album", "plan_key": "..."}
func (h *ReleaseHandler) CreateRelease(c *gin.Context) {
	userID, _ := middleware.UserID(c)

	var req struct {
		Format  models.ReleaseFormat `json:"format" binding:"required"`
		PlanKey string               `json:"plan_key"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format is required"})
		return
	}
	planKey := req.PlanKey
	if planKey == "" {
		planKey = middleware.PlanKey(c)
	}
	if planKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "plan_key is required"})
		return
	}

	release, err := h.releaseService.CreateRelease(c.Request.Context(), userID, planKey, req.Format)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, release)
}

// GetRelease returns a draft with its tracks and audio files
// GET /releases/:id
func (h *ReleaseHandler) GetRelease(c *gin.Context) {
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
	c.JSON(http.StatusOK, release)
}

// UpdateRelease applies a metadata patch
// PATCH /releases/:id
func (h *ReleaseHandler) UpdateRelease(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	releaseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid release ID"})
		return
	}

	var update services.ReleaseUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	release, err := h.releaseService.UpdateRelease(c.Request.Context(), userID, releaseID, update)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, release)
}

// DeleteRelease discards a draft and its stored binaries
// DELETE /releases/:id
func (h *ReleaseHandler) DeleteRelease(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	releaseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid release ID"})
		return
	}

	if err := h.releaseService.DiscardRelease(c.Request.Context(), userID, releaseID); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "release discarded"})
}

// UploadAudioFile registers a new audio master
// POST /releases/:id/audio-files
// Multipart form: file (required)
func (h *ReleaseHandler) UploadAudioFile(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	releaseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid release ID"})
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

	release, track, err := h.releaseService.AddAudioFile(c.Request.Context(), userID, releaseID, fileHeader.Filename, data, nil)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"release": release,
		"track":   track,
	})
}

// AddTrack appends an empty track slot
// POST /releases/:id/tracks
// Body: {"title": "..."}
func (h *ReleaseHandler) AddTrack(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	releaseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid release ID"})
		return
	}

	var req struct {
		Title string `json:"title"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	release, track, err := h.releaseService.AddTrack(userID, releaseID, req.Title)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"release": release,
		"track":   track,
	})
}

// UpdateTrack applies a track patch, including audio link changes
// PATCH /releases/:id/tracks/:trackId
func (h *ReleaseHandler) UpdateTrack(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	releaseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid release ID"})
		return
	}
	trackID, err := uuid.Parse(c.Param("trackId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid track ID"})
		return
	}

	var update services.TrackUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	release, err := h.releaseService.UpdateTrack(c.Request.Context(), userID, releaseID, trackID, update)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, release)
}

// DeleteTrack removes a track slot
// DELETE /releases/:id/tracks/:trackId
func (h *ReleaseHandler) DeleteTrack(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	releaseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid release ID"})
		return
	}
	trackID, err := uuid.Parse(c.Param("trackId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid track ID"})
		return
	}

	release, err := h.releaseService.RemoveTrack(c.Request.Context(), userID, releaseID, trackID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, release)
}

// DeleteAudioFile removes an audio blob; referencing tracks become unlinked
// DELETE /releases/:id/audio-files/:audioId
func (h *ReleaseHandler) DeleteAudioFile(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	releaseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid release ID"})
		return
	}
	audioID, err := uuid.Parse(c.Param("audioId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid audio file ID"})
		return
	}

	release, err := h.releaseService.RemoveAudioFile(c.Request.Context(), userID, releaseID, audioID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, release)
}

// ListUnassignedAudioFiles returns the candidate files for a track's selector
// GET /releases/:id/audio-files/unassigned?excluding=<trackID>
func (h *ReleaseHandler) ListUnassignedAudioFiles(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	releaseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid release ID"})
		return
	}

	excluding := uuid.Nil
	if raw := c.Query("excluding"); raw != "" {
		excluding, err = uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid excluding track ID"})
			return
		}
	}

	files, err := h.releaseService.UnassignedAudioFiles(userID, releaseID, excluding)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"audio_files": files})
}
