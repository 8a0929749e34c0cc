package handlers

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/trackforge/backend/internal/config"
	"github.com/trackforge/backend/internal/middleware"
	"github.com/trackforge/backend/internal/services"
)

// mediaLinkTTL bounds how long a handed-out audio download URL stays valid.
const mediaLinkTTL = 15 * time.Minute

// MediaStore is the slice of the blob store the media endpoints need.
// *services.S3Service satisfies it.
type MediaStore interface {
	Download(ctx context.Context, bucket, key string) (*manager.WriteAtBuffer, error)
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

type MediaHandler struct {
	releaseService *services.ReleaseService
	store          MediaStore
	storage        *services.StorageService
	cfg            *config.Config
}

func NewMediaHandler(releaseService *services.ReleaseService, store MediaStore, storage *services.StorageService, cfg *config.Config) *MediaHandler {
	return &MediaHandler{
		releaseService: releaseService,
		store:          store,
		storage:        storage,
		cfg:            cfg,
	}
}

// CoverArtPreview streams the stored cover image. Served from the local
// cache when present; otherwise fetched from S3 and cached for the next
// request.
// GET /releases/:id/cover-art
func (h *MediaHandler) CoverArtPreview(c *gin.Context) {
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
	if release.CoverArtKey == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no cover art stored"})
		return
	}

	local := h.storage.LocalPathIfExists(release.CoverArtKey)
	if local == "" {
		buf, err := h.store.Download(c.Request.Context(), h.cfg.MediaArtworkBucket, release.CoverArtKey)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to fetch cover art"})
			return
		}
		local, _, _, err = h.storage.SaveStream(c.Request.Context(), release.CoverArtKey, bytes.NewReader(buf.Bytes()))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cache cover art"})
			return
		}
	}

	if err := h.storage.ServeFileWithRange(c.Writer, c.Request, local, release.CoverArtFileName); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to serve cover art"})
	}
}

// AudioDownloadURL hands out a short-lived presigned GET for one stored
// audio master.
// GET /releases/:id/audio-files/:audioId/download-url
func (h *MediaHandler) AudioDownloadURL(c *gin.Context) {
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

	release, err := h.releaseService.GetRelease(userID, releaseID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	af := release.FindAudioFile(audioID)
	if af == nil || af.StorageKey == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "audio file not found"})
		return
	}

	url, err := h.store.PresignGet(c.Request.Context(), h.cfg.MediaAudioBucket, af.StorageKey, mediaLinkTTL)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to presign download"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"url":        url,
		"file_name":  af.FileName,
		"expires_in": int(mediaLinkTTL.Seconds()),
	})
}
