package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReleaseFormat determines how many tracks a release may carry.
type ReleaseFormat string

const (
	FormatSingle ReleaseFormat = "single"
	FormatEP     ReleaseFormat = "ep"
	FormatAlbum  ReleaseFormat = "album"
)

// MultiTrack reports whether the format permits an explicit track list.
func (f ReleaseFormat) MultiTrack() bool {
	return f == FormatEP || f == FormatAlbum
}

// ReleaseStatus is the draft lifecycle state.
type ReleaseStatus string

const (
	ReleaseDraft     ReleaseStatus = "draft"
	ReleaseSubmitted ReleaseStatus = "submitted"
)

// CoverArtState tracks the compliance state machine of the current cover
// attempt.
type CoverArtState string

const (
	CoverPending    CoverArtState = "pending"
	CoverUploading  CoverArtState = "uploading"
	CoverValidating CoverArtState = "validating"
	CoverAccepted   CoverArtState = "accepted"
	CoverWarning    CoverArtState = "warning"
	CoverRejected   CoverArtState = "rejected"
)

// Release is the aggregate root for one distribution submission draft.
type Release struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	Title            string        `gorm:"size:255" json:"title"`
	PrimaryArtist    string        `gorm:"size:255" json:"primary_artist"`
	SecondaryArtists []string      `gorm:"serializer:json" json:"secondary_artists"`
	Format           ReleaseFormat `gorm:"size:16;default:'single'" json:"format"`
	Language         string        `gorm:"size:8" json:"language"`
	ReleaseDate      *time.Time    `json:"release_date,omitempty"`
	Explicit         bool          `json:"explicit"`
	Genre            string        `gorm:"size:64" json:"genre"`
	SubGenre         string        `gorm:"size:64" json:"sub_genre"`
	RecordLabel      string        `gorm:"size:255" json:"record_label"`
	PlanKey          string        `gorm:"size:64" json:"plan_key"`

	// Per-platform identity of the primary artist.
	Profiles ProfileSet `gorm:"serializer:json" json:"profiles"`

	Instagram SocialLink `gorm:"serializer:json" json:"instagram"`
	Facebook  SocialLink `gorm:"serializer:json" json:"facebook"`

	// Cover art. CoverArtKey is set only after an accepted/warning verdict
	// followed by a successful upload; a rejected verdict clears it.
	CoverArtKey      string        `gorm:"size:512" json:"cover_art_key"`
	CoverArtFileName string        `gorm:"size:255" json:"cover_art_file_name"`
	CoverArtState    CoverArtState `gorm:"size:16;default:'pending'" json:"cover_art_state"`

	// Mandatory acknowledgements checked at submission time.
	AckRightsOwnership bool `json:"ack_rights_ownership"`
	AckNoPromoBots     bool `json:"ack_no_promo_bots"`
	AckNameUsage       bool `json:"ack_name_usage"`
	AckTerms           bool `json:"ack_terms"`
	AckIrregularCaps   bool `json:"ack_irregular_caps"`

	Status            ReleaseStatus `gorm:"size:16;default:'draft'" json:"status"`
	SubmittedRecordID string        `gorm:"size:128" json:"submitted_record_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Tracks     []Track     `gorm:"foreignKey:ReleaseID;constraint:OnDelete:CASCADE" json:"tracks,omitempty"`
	AudioFiles []AudioFile `gorm:"foreignKey:ReleaseID;constraint:OnDelete:CASCADE" json:"audio_files,omitempty"`
}

// BeforeCreate generates a UUID if not set
func (r *Release) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Track is per-song metadata, decoupled from the audio binary it represents.
type Track struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ReleaseID uuid.UUID `gorm:"type:uuid;not null;index" json:"release_id"`
	Position  int       `gorm:"default:0" json:"position"`

	Title string `gorm:"size:255" json:"title"`

	// References at most one AudioFile; nil means unlinked. Exclusivity is
	// enforced by the composition commands, never assumed.
	AudioFileID *uuid.UUID `gorm:"type:uuid" json:"audio_file_id,omitempty"`

	ArtistName          string     `gorm:"size:255" json:"artist_name"`
	Language            string     `gorm:"size:8" json:"language"`
	ISRC                string     `gorm:"size:16" json:"isrc"`
	Genre               string     `gorm:"size:64" json:"genre"`
	SubGenre            string     `gorm:"size:64" json:"sub_genre"`
	Songwriters         []string   `gorm:"serializer:json" json:"songwriters"`
	Composers           []string   `gorm:"serializer:json" json:"composers"`
	Instrumental        bool       `json:"instrumental"`
	PreviewStartSeconds int        `gorm:"default:0" json:"preview_start_seconds"`
	Profiles            ProfileSet `gorm:"serializer:json" json:"profiles"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate generates a UUID if not set
func (t *Track) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// AudioContainer is the container format of an uploaded audio binary.
type AudioContainer string

const (
	ContainerWAV  AudioContainer = "wav"
	ContainerFLAC AudioContainer = "flac"
)

// AudioFile is an uploaded audio binary, independent of any track until
// linked.
type AudioFile struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ReleaseID uuid.UUID `gorm:"type:uuid;not null;index" json:"release_id"`

	FileName   string         `gorm:"size:255" json:"file_name"`
	SizeBytes  int64          `json:"size_bytes"`
	MimeType   string         `gorm:"size:120" json:"mime_type"`
	Container  AudioContainer `gorm:"size:8" json:"container"`
	SampleRate int            `json:"sample_rate"`
	BitDepth   int            `json:"bit_depth"`

	// StorageKey is empty until the upload coordinator completes.
	StorageKey string `gorm:"size:512" json:"storage_key"`
	Checksum   string `gorm:"size:128" json:"checksum"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate generates a UUID if not set
func (a *AudioFile) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// ArtistIdentity records a previously used artist name and its platform
// profiles for one user. Powers the single-artist-plan prefill.
type ArtistIdentity struct {
	ID       uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	Name     string     `gorm:"size:255;not null" json:"name"`
	Profiles ProfileSet `gorm:"serializer:json" json:"profiles"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate generates a UUID if not set
func (a *ArtistIdentity) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
