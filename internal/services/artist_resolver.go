package services

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/trackforge/backend/internal/config"
	"github.com/trackforge/backend/internal/models"
	"gorm.io/gorm"
)

// SearchResultSet is the settled outcome of one debounced search for one
// artist field.
type SearchResultSet struct {
	Token      uint64                                     `json:"token"`
	Query      string                                     `json:"query"`
	Settled    bool                                       `json:"settled"`
	NotFound   bool                                       `json:"not_found"`
	ByPlatform map[models.Platform][]models.ArtistProfile `json:"by_platform"`
}

// fieldState tracks one artist-name field of a resolver session. The token
// increments on every keystroke; a response is applied only if its token
// still matches, so stale in-flight responses can never clobber newer ones
// regardless of network arrival order.
type fieldState struct {
	token  uint64
	query  string
	timer  *time.Timer
	result *SearchResultSet
}

// resolverSession is the per-draft transient search state.
type resolverSession struct {
	mu          sync.Mutex
	releaseID   uuid.UUID
	fields      map[int]*fieldState
	lastTouched time.Time
}

// ArtistResolverService turns free-text artist-name input into platform
// matches. One session per draft; fields are addressed by index (0 = main
// artist, 1.. = secondary, negative space is unused).
type ArtistResolverService struct {
	db        *gorm.DB
	cfg       *config.Config
	providers []SearchProvider

	mu       sync.Mutex
	sessions map[uuid.UUID]*resolverSession
}

func NewArtistResolverService(db *gorm.DB, cfg *config.Config, providers []SearchProvider) *ArtistResolverService {
	return &ArtistResolverService{
		db:        db,
		cfg:       cfg,
		providers: providers,
		sessions:  make(map[uuid.UUID]*resolverSession),
	}
}

func (s *ArtistResolverService) session(releaseID uuid.UUID) *resolverSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[releaseID]
	if !ok {
		sess = &resolverSession{
			releaseID: releaseID,
			fields:    make(map[int]*fieldState),
		}
		s.sessions[releaseID] = sess
	}
	sess.lastTouched = time.Now()
	return sess
}

// Input records a keystroke-level change to an artist-name field. The
// field's single debounce timer restarts; only the most recent value is ever
// searched.
func (s *ArtistResolverService) Input(releaseID uuid.UUID, fieldIndex int, name string) {
	sess := s.session(releaseID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	field, ok := sess.fields[fieldIndex]
	if !ok {
		field = &fieldState{}
		sess.fields[fieldIndex] = field
	}

	field.token++
	field.query = name
	field.result = nil
	if field.timer != nil {
		field.timer.Stop()
	}

	trimmed := strings.TrimSpace(name)
	if len(trimmed) < s.cfg.SearchMinQueryLen {
		return
	}

	token := field.token
	field.timer = time.AfterFunc(s.cfg.SearchDebounce, func() {
		s.runSearch(sess, fieldIndex, token, trimmed)
	})
}

// SelectionCleared re-arms the debounce for a field whose stored selection
// was just cleared, when the name is still present and no cached results
// exist.
func (s *ArtistResolverService) SelectionCleared(releaseID uuid.UUID, fieldIndex int) {
	sess := s.session(releaseID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	field, ok := sess.fields[fieldIndex]
	if !ok || field.result != nil {
		return
	}
	trimmed := strings.TrimSpace(field.query)
	if len(trimmed) < s.cfg.SearchMinQueryLen {
		return
	}

	field.token++
	token := field.token
	if field.timer != nil {
		field.timer.Stop()
	}
	field.timer = time.AfterFunc(s.cfg.SearchDebounce, func() {
		s.runSearch(sess, fieldIndex, token, trimmed)
	})
}

// Results returns the latest settled result set for a field, or nil while a
// search is pending or the query was too short.
func (s *ArtistResolverService) Results(releaseID uuid.UUID, fieldIndex int) *SearchResultSet {
	sess := s.session(releaseID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	field, ok := sess.fields[fieldIndex]
	if !ok {
		return nil
	}
	return field.result
}

// runSearch fans out to all providers concurrently. Each branch is isolated:
// a failed provider resolves to an empty list, never failing or hanging the
// join. The settled set is applied only if the field's token still matches.
func (s *ArtistResolverService) runSearch(sess *resolverSession, fieldIndex int, token uint64, query string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SearchHTTPTimeout)
	defer cancel()

	byPlatform := make(map[models.Platform][]models.ArtistProfile, len(s.providers))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, provider := range s.providers {
		wg.Add(1)
		go func(p SearchProvider) {
			defer wg.Done()
			profiles, err := p.Search(ctx, query, s.cfg.SearchResultLimit)
			if err != nil {
				log.Printf("[Search] %s search for %q degraded to empty: %v", p.Platform(), query, err)
				profiles = nil
			}
			mu.Lock()
			byPlatform[p.Platform()] = profiles
			mu.Unlock()
		}(provider)
	}
	wg.Wait()

	total := 0
	for _, profiles := range byPlatform {
		total += len(profiles)
	}

	sess.mu.Lock()
	field, ok := sess.fields[fieldIndex]
	if !ok || field.token != token {
		// A newer request superseded this one while it was in flight.
		sess.mu.Unlock()
		return
	}
	field.result = &SearchResultSet{
		Token:      token,
		Query:      query,
		Settled:    true,
		NotFound:   total == 0,
		ByPlatform: byPlatform,
	}
	releaseID := sess.releaseID
	sess.mu.Unlock()

	// Fresh candidates can hydrate legacy URL profiles stored on the release
	// or its tracks. Matching is by ID/URL, so candidates from any field are
	// safe to try against every slot.
	if total > 0 {
		s.hydrateRelease(releaseID, byPlatform)
	}
}

// hydrateRelease upgrades legacy raw-URL profile refs on the release and its
// tracks against fresh candidates. Idempotent: already-rich profiles are
// never touched.
func (s *ArtistResolverService) hydrateRelease(releaseID uuid.UUID, byPlatform map[models.Platform][]models.ArtistProfile) {
	var release models.Release
	if err := s.db.Preload("Tracks").First(&release, "id = ?", releaseID).Error; err != nil {
		return
	}

	if set, changed := hydrateSet(release.Profiles, byPlatform); changed {
		if err := s.db.Model(&models.Release{}).Where("id = ?", releaseID).
			Update("profiles", set).Error; err != nil {
			log.Printf("[Search] Warning: failed to persist hydrated profiles for %s: %v", releaseID, err)
		} else {
			log.Printf("[Search] Hydrated legacy profile URLs for release %s", releaseID)
		}
	}

	for _, track := range release.Tracks {
		if set, changed := hydrateSet(track.Profiles, byPlatform); changed {
			if err := s.db.Model(&models.Track{}).Where("id = ?", track.ID).
				Update("profiles", set).Error; err != nil {
				log.Printf("[Search] Warning: failed to persist hydrated profiles for track %s: %v", track.ID, err)
			}
		}
	}
}

func hydrateSet(set models.ProfileSet, byPlatform map[models.Platform][]models.ArtistProfile) (models.ProfileSet, bool) {
	changed := false
	for _, platform := range models.Platforms {
		ref := set.Get(platform)
		if ref.Kind != models.ProfileURL {
			continue
		}
		for _, candidate := range byPlatform[platform] {
			if upgraded, ok := ref.Hydrate(candidate); ok {
				set = set.Set(platform, upgraded)
				changed = true
				break
			}
		}
	}
	return set, changed
}

// Prefill returns the user's single prior artist identity when the plan's
// artist ceiling is exactly 1. The caller must not overwrite values the user
// already typed.
func (s *ArtistResolverService) Prefill(userID uuid.UUID, rules PlanRules) (*models.ArtistIdentity, bool) {
	if rules.ArtistLimit != 1 {
		return nil, false
	}

	var identities []models.ArtistIdentity
	if err := s.db.Where("user_id = ?", userID).Limit(2).Find(&identities).Error; err != nil {
		log.Printf("[Search] Warning: failed to load artist identities for %s: %v", userID, err)
		return nil, false
	}
	if len(identities) != 1 {
		return nil, false
	}
	return &identities[0], true
}

// DropSession discards the transient search state of a draft.
func (s *ArtistResolverService) DropSession(releaseID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, releaseID)
}

// ReapIdleSessions drops sessions idle longer than the configured TTL.
// Called periodically from main.
func (s *ArtistResolverService) ReapIdleSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	// lastTouched is only written while s.mu is held (in session), so
	// reading it here under the same lock is safe.
	cutoff := time.Now().Add(-s.cfg.ResolverSessionTTL)
	reaped := 0
	for id, sess := range s.sessions {
		if sess.lastTouched.Before(cutoff) {
			delete(s.sessions, id)
			reaped++
		}
	}
	return reaped
}
