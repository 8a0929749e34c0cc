package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/trackforge/backend/internal/config"
	"github.com/trackforge/backend/internal/models"
	"github.com/trackforge/backend/internal/pkg/audio"
	"github.com/trackforge/backend/pkg/validation"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrReleaseNotFound  = errors.New("release not found")
	ErrReleaseSubmitted = errors.New("release was already submitted")
	ErrPlanViolation    = errors.New("plan does not permit this change")
)

// ReleaseService owns the canonical Track/AudioFile collections of every
// draft. All mutations go load → command → persist under a per-draft lock,
// so the referential-exclusivity invariant is checked against the complete
// post-mutation state before anything is committed.
type ReleaseService struct {
	db      *gorm.DB
	cfg     *config.Config
	upload  *UploadService
	storage *StorageService
	plans   *PlanService

	// Attached after construction; see AttachCleanup.
	resolver *ArtistResolverService
	coverArt *CoverArtService

	locks sync.Map // releaseID → *sync.Mutex
}

func NewReleaseService(db *gorm.DB, cfg *config.Config, upload *UploadService, storage *StorageService, plans *PlanService) *ReleaseService {
	return &ReleaseService{
		db:      db,
		cfg:     cfg,
		upload:  upload,
		storage: storage,
		plans:   plans,
	}
}

// AttachCleanup wires the holders of per-draft transient state so discarding
// a draft also drops its search session and compliance checklist.
func (s *ReleaseService) AttachCleanup(resolver *ArtistResolverService, coverArt *CoverArtService) {
	s.resolver = resolver
	s.coverArt = coverArt
}

func (s *ReleaseService) lock(releaseID uuid.UUID) func() {
	v, _ := s.locks.LoadOrStore(releaseID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// CreateRelease opens a new draft. The format must be permitted by the plan;
// on a degraded plan fetch that means singles only.
func (s *ReleaseService) CreateRelease(ctx context.Context, userID uuid.UUID, planKey string, format models.ReleaseFormat) (*models.Release, error) {
	rules := s.plans.Rules(ctx, planKey, false)
	if !rules.AllowsFormat(format) {
		return nil, fmt.Errorf("%w: format %q not in plan %q", ErrPlanViolation, format, planKey)
	}

	release := &models.Release{
		UserID:    userID,
		Format:    format,
		PlanKey:   planKey,
		Profiles:  models.EmptyProfileSet(),
		Instagram: models.SocialLink{Status: models.SocialNo},
		Facebook:  models.SocialLink{Status: models.SocialNo},
		Status:    models.ReleaseDraft,
	}
	if err := s.db.Create(release).Error; err != nil {
		return nil, fmt.Errorf("failed to create release: %w", err)
	}
	return release, nil
}

// GetRelease loads a draft with its collections, checking ownership.
func (s *ReleaseService) GetRelease(userID, releaseID uuid.UUID) (*models.Release, error) {
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
	return &release, nil
}

// ReleaseUpdate is a field-by-field patch; nil fields are untouched.
type ReleaseUpdate struct {
	Title            *string               `json:"title"`
	PrimaryArtist    *string               `json:"primary_artist"`
	SecondaryArtists *[]string             `json:"secondary_artists"`
	Format           *models.ReleaseFormat `json:"format"`
	Language         *string               `json:"language"`
	ReleaseDate      *time.Time            `json:"release_date"`
	Explicit         *bool                 `json:"explicit"`
	Genre            *string               `json:"genre"`
	SubGenre         *string               `json:"sub_genre"`
	RecordLabel      *string               `json:"record_label"`
	Instagram        *models.SocialLink    `json:"instagram"`
	Facebook         *models.SocialLink    `json:"facebook"`
	Acknowledgements *Acknowledgements     `json:"acknowledgements"`
}

// Acknowledgements mirrors the mandatory submission checkboxes.
type Acknowledgements struct {
	RightsOwnership *bool `json:"rights_ownership"`
	NoPromoBots     *bool `json:"no_promo_bots"`
	NameUsage       *bool `json:"name_usage"`
	Terms           *bool `json:"terms"`
	IrregularCaps   *bool `json:"irregular_caps"`
}

// UpdateRelease applies a metadata patch, gated by the plan rules. A patch
// that would violate the plan (artist ceiling, disallowed format, disallowed
// field) is rejected whole and the draft is unchanged.
func (s *ReleaseService) UpdateRelease(ctx context.Context, userID, releaseID uuid.UUID, update ReleaseUpdate) (*models.Release, error) {
	unlock := s.lock(releaseID)
	defer unlock()

	release, err := s.GetRelease(userID, releaseID)
	if err != nil {
		return nil, err
	}
	if release.Status != models.ReleaseDraft {
		return nil, ErrReleaseSubmitted
	}

	rules := s.plans.Rules(ctx, release.PlanKey, false)

	if update.Title != nil {
		release.Title = validation.SanitizeString(*update.Title)
	}
	if update.PrimaryArtist != nil {
		name := validation.SanitizeString(*update.PrimaryArtist)
		if name == "" {
			return nil, fmt.Errorf("primary artist name must not be empty")
		}
		release.PrimaryArtist = name
	}
	if update.SecondaryArtists != nil {
		names := trimNames(*update.SecondaryArtists)
		if len(names) > 0 && !rules.FieldAllowed("featured_artists") {
			return nil, fmt.Errorf("%w: featured artists are not available on plan %q", ErrPlanViolation, release.PlanKey)
		}
		release.SecondaryArtists = names
	}
	if update.Format != nil {
		format := *update.Format
		if !rules.AllowsFormat(format) {
			return nil, fmt.Errorf("%w: format %q not in plan %q", ErrPlanViolation, format, release.PlanKey)
		}
		if !format.MultiTrack() && len(release.Tracks) > 1 {
			return nil, fmt.Errorf("cannot switch to single while %d tracks exist", len(release.Tracks))
		}
		release.Format = format
	}
	if update.Language != nil {
		if *update.Language != "" && !validation.ValidateLanguage(*update.Language) {
			return nil, fmt.Errorf("invalid language tag %q", *update.Language)
		}
		release.Language = *update.Language
	}
	if update.ReleaseDate != nil {
		minDate := time.Now().UTC().AddDate(0, 0, rules.MinLeadTimeDays).Truncate(24 * time.Hour)
		if update.ReleaseDate.Before(minDate) {
			return nil, fmt.Errorf("release date must be at least %d days out", rules.MinLeadTimeDays)
		}
		release.ReleaseDate = update.ReleaseDate
	}
	if update.Explicit != nil {
		release.Explicit = *update.Explicit
	}
	if update.Genre != nil {
		release.Genre = *update.Genre
	}
	if update.SubGenre != nil {
		release.SubGenre = *update.SubGenre
	}
	if update.RecordLabel != nil {
		if *update.RecordLabel != "" && !rules.FieldAllowed("record_label") {
			return nil, fmt.Errorf("%w: custom record label is not available on plan %q", ErrPlanViolation, release.PlanKey)
		}
		release.RecordLabel = *update.RecordLabel
	}
	if update.Instagram != nil {
		release.Instagram = *update.Instagram
	}
	if update.Facebook != nil {
		release.Facebook = *update.Facebook
	}
	if update.Acknowledgements != nil {
		applyAcks(release, *update.Acknowledgements)
	}

	if err := s.checkArtistCeiling(release, rules); err != nil {
		return nil, err
	}

	if err := s.db.Omit("Tracks", "AudioFiles").Save(release).Error; err != nil {
		return nil, fmt.Errorf("failed to update release: %w", err)
	}
	return release, nil
}

func applyAcks(release *models.Release, acks Acknowledgements) {
	if acks.RightsOwnership != nil {
		release.AckRightsOwnership = *acks.RightsOwnership
	}
	if acks.NoPromoBots != nil {
		release.AckNoPromoBots = *acks.NoPromoBots
	}
	if acks.NameUsage != nil {
		release.AckNameUsage = *acks.NameUsage
	}
	if acks.Terms != nil {
		release.AckTerms = *acks.Terms
	}
	if acks.IrregularCaps != nil {
		release.AckIrregularCaps = *acks.IrregularCaps
	}
}

// checkArtistCeiling counts distinct artists across main + secondary +
// per-track fields against the plan limit.
func (s *ReleaseService) checkArtistCeiling(release *models.Release, rules PlanRules) error {
	if !rules.WithinArtistLimit(len(DistinctArtists(release))) {
		return fmt.Errorf("%w: plan %q allows at most %d artist(s)", ErrPlanViolation, release.PlanKey, rules.ArtistLimit)
	}
	return nil
}

// DistinctArtists returns the distinct, case-folded artist names across the
// release's main, secondary and per-track fields.
func DistinctArtists(release *models.Release) []string {
	seen := make(map[string]bool)
	var names []string
	add := func(name string) {
		folded := strings.ToLower(strings.TrimSpace(name))
		if folded == "" || seen[folded] {
			return
		}
		seen[folded] = true
		names = append(names, strings.TrimSpace(name))
	}
	add(release.PrimaryArtist)
	for _, n := range release.SecondaryArtists {
		add(n)
	}
	for _, t := range release.Tracks {
		add(t.ArtistName)
	}
	return names
}

// DiscardRelease deletes a draft and its stored binaries.
func (s *ReleaseService) DiscardRelease(ctx context.Context, userID, releaseID uuid.UUID) error {
	unlock := s.lock(releaseID)
	defer unlock()

	release, err := s.GetRelease(userID, releaseID)
	if err != nil {
		return err
	}

	for _, af := range release.AudioFiles {
		if af.StorageKey != "" {
			if err := s.deleteStored(ctx, s.cfg.MediaAudioBucket, af.StorageKey); err != nil {
				log.Printf("[Release] Warning: failed to delete audio %s: %v", af.StorageKey, err)
			}
		}
	}
	if release.CoverArtKey != "" {
		if err := s.deleteStored(ctx, s.cfg.MediaArtworkBucket, release.CoverArtKey); err != nil {
			log.Printf("[Release] Warning: failed to delete cover %s: %v", release.CoverArtKey, err)
		}
		if err := s.storage.Remove(release.CoverArtKey); err != nil {
			log.Printf("[Release] Warning: failed to drop cached cover %s: %v", release.CoverArtKey, err)
		}
	}

	if err := s.db.Select("Tracks", "AudioFiles").Delete(release).Error; err != nil {
		return fmt.Errorf("failed to delete release: %w", err)
	}

	if s.resolver != nil {
		s.resolver.DropSession(releaseID)
	}
	if s.coverArt != nil {
		s.coverArt.Reset(releaseID)
	}
	return nil
}

// AddAudioFile validates, uploads and registers a new audio master.
// Container and header checks run before a single byte reaches storage; a
// failed upload leaves the draft untouched.
func (s *ReleaseService) AddAudioFile(ctx context.Context, userID, releaseID uuid.UUID, fileName string, data []byte, onProgress ProgressFunc) (*models.Release, *models.Track, error) {
	unlock := s.lock(releaseID)
	defer unlock()

	release, err := s.GetRelease(userID, releaseID)
	if err != nil {
		return nil, nil, err
	}
	if release.Status != models.ReleaseDraft {
		return nil, nil, ErrReleaseSubmitted
	}
	if int64(len(data)) > s.cfg.UploadMaxAudioSize {
		return nil, nil, fmt.Errorf("audio file too large: %d bytes (max: %d)", len(data), s.cfg.UploadMaxAudioSize)
	}

	info, err := audio.ValidateMaster(fileName, data)
	if err != nil {
		return nil, nil, err
	}

	key := s.storage.BuildObjectKey("audio", release.ID.String(), fileName)
	mimeType := "audio/wav"
	if info.Container == "flac" {
		mimeType = "audio/flac"
	}
	if err := s.upload.Upload(ctx, s.cfg.MediaAudioBucket, key, data, mimeType, onProgress); err != nil {
		return nil, nil, err
	}

	sum := sha256.Sum256(data)
	af := models.AudioFile{
		ID:         uuid.New(),
		FileName:   fileName,
		SizeBytes:  int64(len(data)),
		MimeType:   mimeType,
		Container:  models.AudioContainer(info.Container),
		SampleRate: info.SampleRate,
		BitDepth:   info.BitDepth,
		Checksum:   hex.EncodeToString(sum[:]),
		StorageKey: key,
	}

	replaced := replacedAudioKeys(release, af)
	track, err := release.AddAudioFile(af)
	if err != nil {
		// Composition rejected the file; drop the uploaded object again.
		if derr := s.deleteStored(ctx, s.cfg.MediaAudioBucket, key); derr != nil {
			log.Printf("[Release] Warning: failed to clean up %s: %v", key, derr)
		}
		return nil, nil, err
	}

	if err := s.persist(release); err != nil {
		if derr := s.deleteStored(ctx, s.cfg.MediaAudioBucket, key); derr != nil {
			log.Printf("[Release] Warning: failed to clean up %s: %v", key, derr)
		}
		return nil, nil, err
	}

	// In single mode the new master replaced the previous one.
	for _, old := range replaced {
		if err := s.deleteStored(ctx, s.cfg.MediaAudioBucket, old); err != nil {
			log.Printf("[Release] Warning: failed to delete replaced audio %s: %v", old, err)
		}
	}
	return release, track, nil
}

// replacedAudioKeys returns storage keys that AddAudioFile will drop from
// the aggregate (single-format replacement).
func replacedAudioKeys(release *models.Release, incoming models.AudioFile) []string {
	if release.Format.MultiTrack() {
		return nil
	}
	var keys []string
	for _, af := range release.AudioFiles {
		if af.StorageKey != "" && af.ID != incoming.ID {
			keys = append(keys, af.StorageKey)
		}
	}
	return keys
}

// AddTrack appends an empty track slot for multi-track formats.
func (s *ReleaseService) AddTrack(userID, releaseID uuid.UUID, title string) (*models.Release, *models.Track, error) {
	unlock := s.lock(releaseID)
	defer unlock()

	release, err := s.GetRelease(userID, releaseID)
	if err != nil {
		return nil, nil, err
	}
	if release.Status != models.ReleaseDraft {
		return nil, nil, ErrReleaseSubmitted
	}

	track, err := release.AddTrack(validation.SanitizeString(title))
	if err != nil {
		return nil, nil, err
	}
	if err := s.persist(release); err != nil {
		return nil, nil, err
	}
	return release, track, nil
}

// TrackUpdate is a field-by-field track patch; nil fields are untouched.
// AudioFileID uses uuid.Nil to unlink.
type TrackUpdate struct {
	Title               *string    `json:"title"`
	AudioFileID         *uuid.UUID `json:"audio_file_id"`
	ArtistName          *string    `json:"artist_name"`
	Language            *string    `json:"language"`
	ISRC                *string    `json:"isrc"`
	Genre               *string    `json:"genre"`
	SubGenre            *string    `json:"sub_genre"`
	Songwriters         *[]string  `json:"songwriters"`
	Composers           *[]string  `json:"composers"`
	Instrumental        *bool      `json:"instrumental"`
	PreviewStartSeconds *int       `json:"preview_start_seconds"`
}

// UpdateTrack applies a track patch, including audio link changes. Linking
// an audio file already held by another track is rejected with the prior
// state retained.
func (s *ReleaseService) UpdateTrack(ctx context.Context, userID, releaseID, trackID uuid.UUID, update TrackUpdate) (*models.Release, error) {
	unlock := s.lock(releaseID)
	defer unlock()

	release, err := s.GetRelease(userID, releaseID)
	if err != nil {
		return nil, err
	}
	if release.Status != models.ReleaseDraft {
		return nil, ErrReleaseSubmitted
	}

	track := release.FindTrack(trackID)
	if track == nil {
		return nil, models.ErrTrackNotFound
	}

	rules := s.plans.Rules(ctx, release.PlanKey, false)

	if update.AudioFileID != nil {
		if err := release.LinkTrackToAudio(trackID, *update.AudioFileID); err != nil {
			return nil, err
		}
		track = release.FindTrack(trackID)
	}

	if update.Title != nil {
		title := validation.SanitizeString(*update.Title)
		if title == "" {
			return nil, fmt.Errorf("track title must not be empty")
		}
		track.Title = title
	}
	if update.ArtistName != nil {
		track.ArtistName = validation.SanitizeString(*update.ArtistName)
	}
	if update.Language != nil {
		if *update.Language != "" && !validation.ValidateLanguage(*update.Language) {
			return nil, fmt.Errorf("invalid language tag %q", *update.Language)
		}
		track.Language = *update.Language
	}
	if update.ISRC != nil {
		isrc := *update.ISRC
		if isrc != "" {
			if !rules.FieldAllowed("isrc") {
				return nil, fmt.Errorf("%w: custom ISRC is not available on plan %q", ErrPlanViolation, release.PlanKey)
			}
			if !validation.ValidateISRC(isrc) {
				return nil, fmt.Errorf("invalid ISRC %q", isrc)
			}
			isrc = validation.NormalizeISRC(isrc)
		}
		track.ISRC = isrc
	}
	if update.Genre != nil {
		track.Genre = *update.Genre
	}
	if update.SubGenre != nil {
		track.SubGenre = *update.SubGenre
	}
	if update.Songwriters != nil {
		track.Songwriters = trimNames(*update.Songwriters)
	}
	if update.Composers != nil {
		track.Composers = trimNames(*update.Composers)
	}
	if update.Instrumental != nil {
		track.Instrumental = *update.Instrumental
	}
	if update.PreviewStartSeconds != nil {
		if *update.PreviewStartSeconds < 0 {
			return nil, fmt.Errorf("preview start must not be negative")
		}
		track.PreviewStartSeconds = *update.PreviewStartSeconds
	}

	if err := s.checkArtistCeiling(release, rules); err != nil {
		return nil, err
	}

	if err := s.persist(release); err != nil {
		return nil, err
	}
	return release, nil
}

// RemoveTrack removes a track and any audio file it exclusively referenced.
func (s *ReleaseService) RemoveTrack(ctx context.Context, userID, releaseID, trackID uuid.UUID) (*models.Release, error) {
	unlock := s.lock(releaseID)
	defer unlock()

	release, err := s.GetRelease(userID, releaseID)
	if err != nil {
		return nil, err
	}
	if release.Status != models.ReleaseDraft {
		return nil, ErrReleaseSubmitted
	}

	var droppedKeys []string
	if track := release.FindTrack(trackID); track != nil && track.AudioFileID != nil {
		if af := release.FindAudioFile(*track.AudioFileID); af != nil && af.StorageKey != "" {
			droppedKeys = append(droppedKeys, af.StorageKey)
		}
	}

	if err := release.RemoveTrack(trackID); err != nil {
		return nil, err
	}
	if err := s.persist(release); err != nil {
		return nil, err
	}

	for _, key := range droppedKeys {
		if err := s.deleteStored(ctx, s.cfg.MediaAudioBucket, key); err != nil {
			log.Printf("[Release] Warning: failed to delete audio %s: %v", key, err)
		}
	}
	return release, nil
}

// RemoveAudioFile removes a blob; referencing tracks become unlinked.
func (s *ReleaseService) RemoveAudioFile(ctx context.Context, userID, releaseID, audioFileID uuid.UUID) (*models.Release, error) {
	unlock := s.lock(releaseID)
	defer unlock()

	release, err := s.GetRelease(userID, releaseID)
	if err != nil {
		return nil, err
	}
	if release.Status != models.ReleaseDraft {
		return nil, ErrReleaseSubmitted
	}

	var droppedKey string
	if af := release.FindAudioFile(audioFileID); af != nil {
		droppedKey = af.StorageKey
	}

	if err := release.RemoveAudioFile(audioFileID); err != nil {
		return nil, err
	}
	if err := s.persist(release); err != nil {
		return nil, err
	}

	if droppedKey != "" {
		if err := s.deleteStored(ctx, s.cfg.MediaAudioBucket, droppedKey); err != nil {
			log.Printf("[Release] Warning: failed to delete audio %s: %v", droppedKey, err)
		}
	}
	return release, nil
}

// UnassignedAudioFiles returns the candidate files for a track's audio
// selector.
func (s *ReleaseService) UnassignedAudioFiles(userID, releaseID, excludingTrackID uuid.UUID) ([]models.AudioFile, error) {
	release, err := s.GetRelease(userID, releaseID)
	if err != nil {
		return nil, err
	}
	return release.UnassignedAudioFiles(excludingTrackID), nil
}

// SetArtistProfile replaces one (owner, platform) identity slot on the
// release or, when trackID is non-nil, on a track.
func (s *ReleaseService) SetArtistProfile(userID, releaseID uuid.UUID, trackID *uuid.UUID, platform models.Platform, ref models.ProfileRef) (*models.Release, error) {
	unlock := s.lock(releaseID)
	defer unlock()

	if err := ref.Validate(); err != nil {
		return nil, err
	}

	release, err := s.GetRelease(userID, releaseID)
	if err != nil {
		return nil, err
	}
	if release.Status != models.ReleaseDraft {
		return nil, ErrReleaseSubmitted
	}

	if trackID == nil {
		release.Profiles = release.Profiles.Set(platform, ref)
		if err := s.db.Model(&models.Release{}).Where("id = ?", releaseID).
			Update("profiles", release.Profiles).Error; err != nil {
			return nil, fmt.Errorf("failed to store profile: %w", err)
		}
		return release, nil
	}

	track := release.FindTrack(*trackID)
	if track == nil {
		return nil, models.ErrTrackNotFound
	}
	track.Profiles = track.Profiles.Set(platform, ref)
	if err := s.db.Model(&models.Track{}).Where("id = ?", track.ID).
		Update("profiles", track.Profiles).Error; err != nil {
		return nil, fmt.Errorf("failed to store track profile: %w", err)
	}
	return release, nil
}

// persist writes the full post-mutation collections in one transaction:
// rows missing from the aggregate are deleted, the rest upserted.
func (s *ReleaseService) persist(release *models.Release) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		trackIDs := make([]uuid.UUID, 0, len(release.Tracks))
		for _, t := range release.Tracks {
			trackIDs = append(trackIDs, t.ID)
		}
		audioIDs := make([]uuid.UUID, 0, len(release.AudioFiles))
		for _, af := range release.AudioFiles {
			audioIDs = append(audioIDs, af.ID)
		}

		trackScope := tx.Where("release_id = ?", release.ID)
		if len(trackIDs) > 0 {
			trackScope = trackScope.Where("id NOT IN ?", trackIDs)
		}
		if err := trackScope.Delete(&models.Track{}).Error; err != nil {
			return err
		}

		audioScope := tx.Where("release_id = ?", release.ID)
		if len(audioIDs) > 0 {
			audioScope = audioScope.Where("id NOT IN ?", audioIDs)
		}
		if err := audioScope.Delete(&models.AudioFile{}).Error; err != nil {
			return err
		}

		// Rows carry pre-assigned UUIDs, so inserts and updates both go
		// through an upsert.
		for i := range release.AudioFiles {
			release.AudioFiles[i].ReleaseID = release.ID
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&release.AudioFiles[i]).Error; err != nil {
				return err
			}
		}
		for i := range release.Tracks {
			release.Tracks[i].ReleaseID = release.ID
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&release.Tracks[i]).Error; err != nil {
				return err
			}
		}
		return tx.Omit("Tracks", "AudioFiles").Save(release).Error
	})
}

func (s *ReleaseService) deleteStored(ctx context.Context, bucket, key string) error {
	type deleter interface {
		Delete(ctx context.Context, bucket, key string) error
	}
	if d, ok := s.upload.store.(deleter); ok {
		return d.Delete(ctx, bucket, key)
	}
	return nil
}

func trimNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if trimmed := validation.SanitizeString(n); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
