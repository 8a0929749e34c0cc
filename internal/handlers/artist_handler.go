package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/trackforge/backend/internal/middleware"
	"github.com/trackforge/backend/internal/models"
	"github.com/trackforge/backend/internal/services"
)

type ArtistHandler struct {
	releaseService *services.ReleaseService
	resolver       *services.ArtistResolverService
	planService    *services.PlanService
}

func NewArtistHandler(releaseService *services.ReleaseService, resolver *services.ArtistResolverService, planService *services.PlanService) *ArtistHandler {
	return &ArtistHandler{
		releaseService: releaseService,
		resolver:       resolver,
		planService:    planService,
	}
}

// ArtistInput records a keystroke-level change to an artist-name field
// POST /releases/:id/artist-input
// Body: {"field": 0, "name": "..."}
func (h *ArtistHandler) ArtistInput(c *gin.Context) {
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

	var req struct {
		Field *int   `json:"field" binding:"required"`
		Name  string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || *req.Field < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "field index is required"})
		return
	}

	h.resolver.Input(releaseID, *req.Field, req.Name)
	c.JSON(http.StatusAccepted, gin.H{"message": "input recorded"})
}

// ArtistResults returns the latest settled search results for a field
// GET /releases/:id/artist-results?field=N
func (h *ArtistHandler) ArtistResults(c *gin.Context) {
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

	field, err := strconv.Atoi(c.DefaultQuery("field", "0"))
	if err != nil || field < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid field index"})
		return
	}

	result := h.resolver.Results(releaseID, field)
	if result == nil {
		c.JSON(http.StatusOK, gin.H{"settled": false})
		return
	}
	c.JSON(http.StatusOK, result)
}

// SetArtistProfile replaces one platform identity slot
// PUT /releases/:id/artists/:platform
// Body: {"ref": {...}, "field": 0, "track_id": "..."} (field and track_id optional)
func (h *ArtistHandler) SetArtistProfile(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	releaseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid release ID"})
		return
	}

	platform := models.Platform(c.Param("platform"))
	switch platform {
	case models.PlatformSpotify, models.PlatformApple, models.PlatformYouTube:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown platform"})
		return
	}

	var req struct {
		Ref     models.ProfileRef `json:"ref"`
		Field   int               `json:"field"`
		TrackID *uuid.UUID        `json:"track_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Field < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	release, err := h.releaseService.SetArtistProfile(userID, releaseID, req.TrackID, platform, req.Ref)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	// Clearing a selection re-arms that field's debounce so the dropdown can
	// repopulate without another keystroke.
	if !req.Ref.IsSet() {
		h.resolver.SelectionCleared(releaseID, req.Field)
	}
	c.JSON(http.StatusOK, release)
}

// ArtistPrefill returns the user's single prior identity on one-artist plans
// GET /releases/:id/artist-prefill
func (h *ArtistHandler) ArtistPrefill(c *gin.Context) {
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

	rules := h.planService.Rules(c.Request.Context(), release.PlanKey, false)
	identity, ok := h.resolver.Prefill(userID, rules)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"prefill": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"prefill": identity})
}
