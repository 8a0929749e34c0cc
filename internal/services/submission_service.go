package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/trackforge/backend/internal/config"
	"github.com/trackforge/backend/internal/models"
	"github.com/trackforge/backend/pkg/validation"
	"gorm.io/gorm"
)

// Violation is one submission blocker, addressed to a field so clients can
// anchor it to the form.
type Violation struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrNotSubmittable carries the complete violation list. The gate never
// stops at the first problem; every blocker is reported in one pass.
type ErrNotSubmittable struct {
	Violations []Violation
}

func (e *ErrNotSubmittable) Error() string {
	return fmt.Sprintf("release is not submittable: %d violation(s)", len(e.Violations))
}

// SubmissionService runs the full pre-submission gate and, on success,
// assembles the record and hands it to the distribution collaborator.
type SubmissionService struct {
	db       *gorm.DB
	cfg      *config.Config
	plans    *PlanService
	coverArt *CoverArtService
	client   *http.Client
}

func NewSubmissionService(db *gorm.DB, cfg *config.Config, plans *PlanService, coverArt *CoverArtService) *SubmissionService {
	return &SubmissionService{
		db:       db,
		cfg:      cfg,
		plans:    plans,
		coverArt: coverArt,
		client:   &http.Client{Timeout: cfg.SubmissionHTTPTimeout},
	}
}

// Validate runs every submission check against the draft and returns all
// violations found. An empty slice means the release is submittable.
func (s *SubmissionService) Validate(ctx context.Context, release *models.Release) []Violation {
	rules := s.plans.Rules(ctx, release.PlanKey, false)
	var v []Violation

	add := func(field, code, message string) {
		v = append(v, Violation{Field: field, Code: code, Message: message})
	}

	if release.Title == "" {
		add("title", "MISSING", "release title is required")
	}
	if release.PrimaryArtist == "" {
		add("primary_artist", "MISSING", "primary artist name is required")
	}
	if release.Genre == "" {
		add("genre", "MISSING", "genre is required")
	}
	if release.Language == "" {
		add("language", "MISSING", "language is required")
	}

	if !rules.AllowsFormat(release.Format) {
		add("format", "PLAN_FORBIDS", fmt.Sprintf("plan %q does not allow format %q", release.PlanKey, release.Format))
	}
	if !rules.WithinArtistLimit(len(DistinctArtists(release))) {
		add("artists", "PLAN_FORBIDS", fmt.Sprintf("plan %q allows at most %d artist(s)", release.PlanKey, rules.ArtistLimit))
	}

	// Plan-required optional fields.
	if rules.FieldRequired("record_label") && release.RecordLabel == "" {
		add("record_label", "MISSING", "record label is required on this plan")
	}
	if rules.FieldRequired("isrc") {
		for i, t := range release.Tracks {
			if t.ISRC == "" {
				add(fmt.Sprintf("tracks[%d].isrc", i), "MISSING", "ISRC is required on this plan")
			}
		}
	}

	if release.ReleaseDate == nil {
		add("release_date", "MISSING", "release date is required")
	} else {
		minDate := time.Now().UTC().AddDate(0, 0, rules.MinLeadTimeDays).Truncate(24 * time.Hour)
		if release.ReleaseDate.Before(minDate) {
			add("release_date", "TOO_SOON", fmt.Sprintf("release date must be at least %d days out", rules.MinLeadTimeDays))
		}
	}

	s.validateTracks(release, &v)

	switch release.CoverArtState {
	case models.CoverAccepted, models.CoverWarning:
		if release.CoverArtKey == "" {
			add("cover_art", "MISSING", "cover art upload did not complete")
		}
	default:
		add("cover_art", "NOT_ACCEPTED", "cover art must pass the compliance check")
	}

	if !release.AckRightsOwnership {
		add("ack_rights_ownership", "MISSING", "rights ownership must be acknowledged")
	}
	if !release.AckNoPromoBots {
		add("ack_no_promo_bots", "MISSING", "the no-promotion-bots policy must be acknowledged")
	}
	if !release.AckNameUsage {
		add("ack_name_usage", "MISSING", "name usage must be acknowledged")
	}
	if !release.AckTerms {
		add("ack_terms", "MISSING", "the distribution terms must be acknowledged")
	}

	// The irregular-capitalization ack is conditional: only demanded when a
	// title or artist name actually uses unusual casing.
	if s.needsCapsAck(release) && !release.AckIrregularCaps {
		add("ack_irregular_caps", "MISSING", "irregular capitalization must be confirmed as intentional")
	}

	return v
}

func (s *SubmissionService) validateTracks(release *models.Release, v *[]Violation) {
	add := func(field, code, message string) {
		*v = append(*v, Violation{Field: field, Code: code, Message: message})
	}

	if release.Format.MultiTrack() {
		min := 2
		if release.Format == models.FormatAlbum {
			min = 7
		}
		if len(release.Tracks) < min {
			add("tracks", "TOO_FEW", fmt.Sprintf("%s requires at least %d tracks", release.Format, min))
		}
	} else if len(release.Tracks) == 0 {
		add("tracks", "MISSING", "a single requires one uploaded audio file")
	}

	for i, t := range release.Tracks {
		prefix := fmt.Sprintf("tracks[%d]", i)
		if t.Title == "" {
			add(prefix+".title", "MISSING", "track title is required")
		}
		if t.AudioFileID == nil {
			add(prefix+".audio", "UNLINKED", "every track must have an audio file")
		} else if af := release.FindAudioFile(*t.AudioFileID); af == nil || af.StorageKey == "" {
			add(prefix+".audio", "UNLINKED", "the linked audio file is not stored")
		}
		if t.ISRC != "" && !validation.ValidateISRC(t.ISRC) {
			add(prefix+".isrc", "INVALID", fmt.Sprintf("%q is not a valid ISRC", t.ISRC))
		}
	}
}

func (s *SubmissionService) needsCapsAck(release *models.Release) bool {
	if validation.HasIrregularCapitalization(release.Title) ||
		validation.HasIrregularCapitalization(release.PrimaryArtist) {
		return true
	}
	for _, name := range release.SecondaryArtists {
		if validation.HasIrregularCapitalization(name) {
			return true
		}
	}
	for _, t := range release.Tracks {
		if validation.HasIrregularCapitalization(t.Title) ||
			validation.HasIrregularCapitalization(t.ArtistName) {
			return true
		}
	}
	return false
}

// Submit gates, assembles and ships the release. On success the draft is
// marked submitted and the artist identity is remembered for future
// prefills. Submission is rejected whole if a single violation remains.
func (s *SubmissionService) Submit(ctx context.Context, userID, releaseID uuid.UUID) (*models.Release, error) {
	var release models.Release
	err := s.db.Preload("Tracks", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).Preload("AudioFiles").First(&release, "id = ? AND user_id = ?", releaseID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrReleaseNotFound
	}
	if err != nil {
		return nil, err
	}
	if release.Status != models.ReleaseDraft {
		return nil, ErrReleaseSubmitted
	}

	if violations := s.Validate(ctx, &release); len(violations) > 0 {
		return nil, &ErrNotSubmittable{Violations: violations}
	}

	recordID, err := s.deliver(ctx, &release)
	if err != nil {
		return nil, fmt.Errorf("submission delivery failed: %w", err)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Release{}).Where("id = ?", release.ID).Updates(map[string]interface{}{
			"status":              models.ReleaseSubmitted,
			"submitted_record_id": recordID,
		}).Error; err != nil {
			return err
		}
		return s.rememberIdentity(tx, &release)
	})
	if err != nil {
		// The collaborator accepted the record; surface the local failure but
		// keep the record ID for reconciliation.
		log.Printf("[Submission] Warning: record %s delivered but local update failed: %v", recordID, err)
		return nil, err
	}

	release.Status = models.ReleaseSubmitted
	release.SubmittedRecordID = recordID

	// The compliance checklist belongs to the draft phase; drop it now that
	// the release left it.
	if s.coverArt != nil {
		s.coverArt.Reset(release.ID)
	}

	log.Printf("[Submission] Release %s submitted as record %s", release.ID, recordID)
	return &release, nil
}

// rememberIdentity upserts the (user, primary artist) identity so later
// single-artist drafts can be prefilled.
func (s *SubmissionService) rememberIdentity(tx *gorm.DB, release *models.Release) error {
	var identity models.ArtistIdentity
	err := tx.First(&identity, "user_id = ? AND name = ?", release.UserID, release.PrimaryArtist).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tx.Create(&models.ArtistIdentity{
			UserID:   release.UserID,
			Name:     release.PrimaryArtist,
			Profiles: release.Profiles,
		}).Error
	}
	if err != nil {
		return err
	}
	identity.Profiles = release.Profiles
	return tx.Save(&identity).Error
}

type submissionTrack struct {
	Position            int               `json:"position"`
	Title               string            `json:"title"`
	ArtistName          string            `json:"artistName,omitempty"`
	Language            string            `json:"language,omitempty"`
	ISRC                string            `json:"isrc,omitempty"`
	Genre               string            `json:"genre,omitempty"`
	SubGenre            string            `json:"subGenre,omitempty"`
	Songwriters         []string          `json:"songwriters,omitempty"`
	Composers           []string          `json:"composers,omitempty"`
	Instrumental        bool              `json:"instrumental"`
	PreviewStartSeconds int               `json:"previewStartSeconds"`
	AudioKey            string            `json:"audioKey"`
	Profiles            models.ProfileSet `json:"profiles"`
}

type submissionPayload struct {
	ReleaseID        string            `json:"releaseId"`
	Title            string            `json:"title"`
	PrimaryArtist    string            `json:"primaryArtist"`
	SecondaryArtists []string          `json:"secondaryArtists,omitempty"`
	Format           string            `json:"format"`
	Language         string            `json:"language"`
	ReleaseDate      string            `json:"releaseDate"`
	Explicit         bool              `json:"explicit"`
	Genre            string            `json:"genre"`
	SubGenre         string            `json:"subGenre,omitempty"`
	RecordLabel      string            `json:"recordLabel,omitempty"`
	PlanKey          string            `json:"planKey"`
	Profiles         models.ProfileSet `json:"profiles"`
	Instagram        models.SocialLink `json:"instagram"`
	Facebook         models.SocialLink `json:"facebook"`
	CoverArtKey      string            `json:"coverArtKey"`
	Tracks           []submissionTrack `json:"tracks"`
}

func (s *SubmissionService) deliver(ctx context.Context, release *models.Release) (string, error) {
	payload := submissionPayload{
		ReleaseID:        release.ID.String(),
		Title:            release.Title,
		PrimaryArtist:    release.PrimaryArtist,
		SecondaryArtists: release.SecondaryArtists,
		Format:           string(release.Format),
		Language:         release.Language,
		ReleaseDate:      release.ReleaseDate.Format("2006-01-02"),
		Explicit:         release.Explicit,
		Genre:            release.Genre,
		SubGenre:         release.SubGenre,
		RecordLabel:      release.RecordLabel,
		PlanKey:          release.PlanKey,
		Profiles:         release.Profiles,
		Instagram:        release.Instagram,
		Facebook:         release.Facebook,
		CoverArtKey:      release.CoverArtKey,
	}
	for _, t := range release.Tracks {
		st := submissionTrack{
			Position:            t.Position,
			Title:               t.Title,
			ArtistName:          t.ArtistName,
			Language:            t.Language,
			ISRC:                t.ISRC,
			Genre:               t.Genre,
			SubGenre:            t.SubGenre,
			Songwriters:         t.Songwriters,
			Composers:           t.Composers,
			Instrumental:        t.Instrumental,
			PreviewStartSeconds: t.PreviewStartSeconds,
			Profiles:            t.Profiles,
		}
		if t.AudioFileID != nil {
			if af := release.FindAudioFile(*t.AudioFileID); af != nil {
				st.AudioKey = af.StorageKey
			}
		}
		payload.Tracks = append(payload.Tracks, st)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.SubmissionURL+"/records", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.SubmissionToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.SubmissionToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("distribution service returned status %d: %s", resp.StatusCode, string(msg))
	}

	var result struct {
		RecordID string `json:"recordId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode distribution response: %w", err)
	}
	if result.RecordID == "" {
		return "", fmt.Errorf("distribution response missing record id")
	}
	return result.RecordID, nil
}
