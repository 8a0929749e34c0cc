package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/trackforge/backend/internal/config"
	"github.com/trackforge/backend/internal/models"
	"github.com/trackforge/backend/internal/pkg/artwork"
	"gorm.io/gorm"
)

// ChecklistItemState is the live status of one compliance requirement.
type ChecklistItemState string

const (
	ItemPending ChecklistItemState = "pending"
	ItemSuccess ChecklistItemState = "success"
	ItemError   ChecklistItemState = "error"
)

// ChecklistRequirement names one of the seven fixed cover-art requirements.
type ChecklistRequirement string

const (
	ReqResolution   ChecklistRequirement = "resolution"
	ReqSquare       ChecklistRequirement = "square_aspect"
	ReqColorSpace   ChecklistRequirement = "rgb_color_space"
	ReqCleanCanvas  ChecklistRequirement = "no_borders_or_watermarks"
	ReqTruthfulText ChecklistRequirement = "artist_title_truthful"
	ReqNoProhibited ChecklistRequirement = "no_prohibited_content"
	ReqSharpness    ChecklistRequirement = "not_blurred"
)

// ChecklistRequirements lists all requirements in display order.
var ChecklistRequirements = []ChecklistRequirement{
	ReqResolution, ReqSquare, ReqColorSpace, ReqCleanCanvas,
	ReqTruthfulText, ReqNoProhibited, ReqSharpness,
}

// defectCodes maps each requirement to the defect codes that falsify it.
var defectCodes = map[ChecklistRequirement][]string{
	ReqResolution:   {"LOW_RESOLUTION", "UPSCALED"},
	ReqSquare:       {"NOT_SQUARE"},
	ReqColorSpace:   {"CMYK_COLOR_SPACE", "WRONG_COLOR_SPACE"},
	ReqCleanCanvas:  {"BORDERS_DETECTED", "WATERMARK_DETECTED"},
	ReqTruthfulText: {"ARTIST_MISMATCH", "TITLE_MISMATCH", "TEXT_MISMATCH"},
	ReqNoProhibited: {"PROHIBITED_CONTENT", "SOCIAL_HANDLES", "CONTACT_INFO"},
	ReqSharpness:    {"BLURRY_IMAGE", "PIXELATED"},
}

var (
	// ErrComplianceUnavailable marks a check that could not complete because
	// the compliance collaborator was unreachable or answered garbage. The
	// caller's file may be perfectly fine.
	ErrComplianceUnavailable = errors.New("compliance check unavailable")
	// ErrCoverUploadFailed marks a storage failure after an accepting verdict.
	ErrCoverUploadFailed = errors.New("cover art upload failed")
)

// ValidationError is one defect reported by the compliance collaborator.
type ValidationError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity"` // warning | rejecting
}

// CoverArtResult is the outcome of one cover-art attempt.
type CoverArtResult struct {
	State      models.CoverArtState                        `json:"state"`
	Checklist  map[ChecklistRequirement]ChecklistItemState `json:"checklist"`
	Errors     []ValidationError                           `json:"errors,omitempty"`
	Advisories []string                                    `json:"advisories,omitempty"`
	StorageKey string                                      `json:"storage_key,omitempty"`
}

func pendingChecklist() map[ChecklistRequirement]ChecklistItemState {
	checklist := make(map[ChecklistRequirement]ChecklistItemState, len(ChecklistRequirements))
	for _, req := range ChecklistRequirements {
		checklist[req] = ItemPending
	}
	return checklist
}

// mapDefects turns the collaborator's defect list into checklist states: a
// requirement with no matching defect after a completed check is success,
// with at least one it is error.
func mapDefects(errors []ValidationError) map[ChecklistRequirement]ChecklistItemState {
	checklist := make(map[ChecklistRequirement]ChecklistItemState, len(ChecklistRequirements))
	for _, req := range ChecklistRequirements {
		state := ItemSuccess
		for _, code := range defectCodes[req] {
			for _, e := range errors {
				if e.Code == code {
					state = ItemError
				}
			}
		}
		checklist[req] = state
	}
	return checklist
}

// CoverArtService runs the cover-art compliance state machine:
// pending → {uploading → validating} → accepted | warning | rejected.
// A rejected verdict blocks upload entirely; the binary never reaches
// storage and the stored reference is cleared.
type CoverArtService struct {
	db      *gorm.DB
	cfg     *config.Config
	upload  *UploadService
	storage *StorageService
	client  *http.Client

	mu      sync.Mutex
	results map[uuid.UUID]*CoverArtResult
}

func NewCoverArtService(db *gorm.DB, cfg *config.Config, upload *UploadService, storage *StorageService) *CoverArtService {
	return &CoverArtService{
		db:      db,
		cfg:     cfg,
		upload:  upload,
		storage: storage,
		client:  &http.Client{Timeout: cfg.ComplianceHTTPTimeout},
		results: make(map[uuid.UUID]*CoverArtResult),
	}
}

// Checklist returns the live checklist for a release's current attempt, or
// an all-pending one if no check has completed.
func (s *CoverArtService) Checklist(releaseID uuid.UUID) *CoverArtResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.results[releaseID]; ok {
		return r
	}
	return &CoverArtResult{State: models.CoverPending, Checklist: pendingChecklist()}
}

// ProcessCoverArt validates and, verdict permitting, uploads a cover image
// for the release. The checklist is reset to pending before the new result
// arrives so stale per-item status from a previous file is never shown.
func (s *CoverArtService) ProcessCoverArt(ctx context.Context, release *models.Release, fileName string, data []byte) (*CoverArtResult, error) {
	// Immediate local gates: wrong type or oversize never reach the
	// collaborator.
	mimeType, err := artwork.SniffImage(data)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > s.cfg.CoverArtMaxSize {
		return nil, fmt.Errorf("cover art too large: %d bytes (max: %d)", len(data), s.cfg.CoverArtMaxSize)
	}

	// Local dimension probe is advisory only; the remote check always runs.
	advisories := artwork.AdvisoryCheck(data, s.cfg.CoverArtMinPixels)

	s.setResult(release.ID, &CoverArtResult{
		State:      models.CoverValidating,
		Checklist:  pendingChecklist(),
		Advisories: advisories,
	})

	verdict, defects, err := s.remoteCheck(ctx, release, fileName, data)
	if err != nil {
		// The compliance gate fails closed: without a verdict the asset is
		// not accepted, but the previous stored cover (if any) survives.
		s.setResult(release.ID, &CoverArtResult{
			State:      models.CoverPending,
			Checklist:  pendingChecklist(),
			Advisories: advisories,
		})
		return nil, fmt.Errorf("%w: %v", ErrComplianceUnavailable, err)
	}

	result := &CoverArtResult{
		State:      verdict,
		Checklist:  mapDefects(defects),
		Errors:     defects,
		Advisories: advisories,
	}

	if verdict == models.CoverRejected {
		// Clear any stored reference; the binary is never uploaded.
		if err := s.db.Model(&models.Release{}).Where("id = ?", release.ID).Updates(map[string]interface{}{
			"cover_art_key":       "",
			"cover_art_file_name": "",
			"cover_art_state":     models.CoverRejected,
		}).Error; err != nil {
			return nil, fmt.Errorf("failed to clear cover art: %w", err)
		}
		if release.CoverArtKey != "" {
			if err := s.storage.Remove(release.CoverArtKey); err != nil {
				log.Printf("[CoverArt] Warning: failed to drop cached cover %s: %v", release.CoverArtKey, err)
			}
		}
		s.setResult(release.ID, result)
		log.Printf("[CoverArt] Release %s cover rejected with %d defects", release.ID, len(defects))
		return result, nil
	}

	// accepted or warning: proceed to upload.
	s.setResult(release.ID, &CoverArtResult{
		State:      models.CoverUploading,
		Checklist:  result.Checklist,
		Errors:     defects,
		Advisories: advisories,
	})

	key := s.storage.BuildObjectKey("artwork", release.ID.String(), fileName)
	if err := s.upload.Upload(ctx, s.cfg.MediaArtworkBucket, key, data, mimeType, nil); err != nil {
		s.setResult(release.ID, &CoverArtResult{
			State:      models.CoverPending,
			Checklist:  pendingChecklist(),
			Advisories: advisories,
		})
		return nil, fmt.Errorf("%w: %v", ErrCoverUploadFailed, err)
	}

	// Keep a local preview copy; S3 is the source of truth.
	if _, _, _, err := s.storage.SaveStream(ctx, key, bytes.NewReader(data)); err != nil {
		log.Printf("[CoverArt] Warning: failed to cache cover locally: %v", err)
	}

	if err := s.db.Model(&models.Release{}).Where("id = ?", release.ID).Updates(map[string]interface{}{
		"cover_art_key":       key,
		"cover_art_file_name": fileName,
		"cover_art_state":     verdict,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to store cover art reference: %w", err)
	}

	// The replaced cover's cache entry is no longer reachable.
	if release.CoverArtKey != "" && release.CoverArtKey != key {
		if err := s.storage.Remove(release.CoverArtKey); err != nil {
			log.Printf("[CoverArt] Warning: failed to drop cached cover %s: %v", release.CoverArtKey, err)
		}
	}

	result.StorageKey = key
	s.setResult(release.ID, result)

	if verdict == models.CoverWarning {
		log.Printf("[CoverArt] Release %s cover accepted with warnings (%d defects)", release.ID, len(defects))
	}
	return result, nil
}

// Reset drops the transient checklist, e.g. when the draft is discarded.
func (s *CoverArtService) Reset(releaseID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.results, releaseID)
}

func (s *CoverArtService) setResult(releaseID uuid.UUID, result *CoverArtResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[releaseID] = result
}

type complianceResponse struct {
	Status string            `json:"status"`
	Errors []ValidationError `json:"errors"`
}

// remoteCheck submits the image plus release context to the compliance
// collaborator.
func (s *CoverArtService) remoteCheck(ctx context.Context, release *models.Release, fileName string, data []byte) (models.CoverArtState, []ValidationError, error) {
	checkCtx := map[string]interface{}{
		"artistName":      release.PrimaryArtist,
		"trackTitle":      release.Title,
		"featuredArtists": release.SecondaryArtists,
		"isExplicit":      release.Explicit,
	}
	if release.ReleaseDate != nil {
		checkCtx["releaseYear"] = release.ReleaseDate.Year()
	}
	if release.RecordLabel != "" {
		checkCtx["recordLabel"] = release.RecordLabel
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("image", fileName)
	if err != nil {
		return "", nil, err
	}
	if _, err := part.Write(data); err != nil {
		return "", nil, err
	}
	contextJSON, err := json.Marshal(checkCtx)
	if err != nil {
		return "", nil, err
	}
	if err := writer.WriteField("context", string(contextJSON)); err != nil {
		return "", nil, err
	}
	if err := writer.Close(); err != nil {
		return "", nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.ComplianceURL+"/validate", &buf)
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if s.cfg.ComplianceToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.ComplianceToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", nil, fmt.Errorf("compliance service returned status %d: %s", resp.StatusCode, string(body))
	}

	var result complianceResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", nil, fmt.Errorf("failed to decode compliance response: %w", err)
	}

	switch result.Status {
	case "accepted":
		return models.CoverAccepted, result.Errors, nil
	case "warning":
		return models.CoverWarning, result.Errors, nil
	case "rejected":
		return models.CoverRejected, result.Errors, nil
	default:
		return "", nil, fmt.Errorf("unknown compliance status %q", result.Status)
	}
}
