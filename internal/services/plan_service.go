package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/trackforge/backend/internal/config"
	"github.com/trackforge/backend/internal/models"
	"golang.org/x/sync/singleflight"
)

// FieldRule gates one optional release field for a plan tier.
type FieldRule struct {
	Allow    bool `json:"allow"`
	Required bool `json:"required"`
}

// PlanRules is the read-only rule set for one plan tier.
type PlanRules struct {
	PlanKey         string                 `json:"plan_key"`
	ArtistLimit     int                    `json:"artist_limit"` // 0 = unbounded
	AllowConcurrent bool                   `json:"allow_concurrent"`
	AllowedFormats  []models.ReleaseFormat `json:"allowed_formats"`
	MinLeadTimeDays int                    `json:"min_lead_time_days"`
	Fields          map[string]FieldRule   `json:"fields"`

	// Degraded marks the restrictive fallback applied on collaborator
	// failure.
	Degraded bool `json:"degraded,omitempty"`
}

// AllowsFormat reports whether the plan permits a release format.
func (r PlanRules) AllowsFormat(f models.ReleaseFormat) bool {
	for _, allowed := range r.AllowedFormats {
		if allowed == f {
			return true
		}
	}
	return false
}

// FieldAllowed reports whether an optional field may be used at all.
func (r PlanRules) FieldAllowed(name string) bool {
	rule, ok := r.Fields[name]
	return ok && rule.Allow
}

// FieldRequired reports whether a field must be present at submission.
func (r PlanRules) FieldRequired(name string) bool {
	rule, ok := r.Fields[name]
	return ok && rule.Required
}

// WithinArtistLimit reports whether count distinct artists fit the ceiling.
func (r PlanRules) WithinArtistLimit(count int) bool {
	return r.ArtistLimit == 0 || count <= r.ArtistLimit
}

// restrictiveRules is the fail-closed fallback: one artist, singles only, no
// optional fields.
func restrictiveRules(planKey string, leadTimeDays int) PlanRules {
	return PlanRules{
		PlanKey:         planKey,
		ArtistLimit:     1,
		AllowConcurrent: false,
		AllowedFormats:  []models.ReleaseFormat{models.FormatSingle},
		MinLeadTimeDays: leadTimeDays,
		Fields:          map[string]FieldRule{},
		Degraded:        true,
	}
}

// PlanService fetches plan-tier rules from the plan collaborator, caches
// them in Redis, and degrades to the most restrictive configuration when the
// collaborator is unavailable. It never fails open.
type PlanService struct {
	cfg    *config.Config
	redis  *redis.Client
	client *http.Client
	group  singleflight.Group
}

func NewPlanService(cfg *config.Config, redisClient *redis.Client) *PlanService {
	return &PlanService{
		cfg:    cfg,
		redis:  redisClient,
		client: &http.Client{Timeout: cfg.PlanHTTPTimeout},
	}
}

// Rules returns the rule set for a plan key. forceRefresh bypasses the
// cache. The restrictive fallback is returned (and not cached) on any
// collaborator failure, so a later call can recover.
func (s *PlanService) Rules(ctx context.Context, planKey string, forceRefresh bool) PlanRules {
	cacheKey := fmt.Sprintf("plan_rules:%s", planKey)

	if !forceRefresh && s.redis != nil {
		if cached, err := s.redis.Get(ctx, cacheKey).Bytes(); err == nil {
			var rules PlanRules
			if err := json.Unmarshal(cached, &rules); err == nil {
				return rules
			}
		}
	}

	// Collapse concurrent fetches for the same plan key.
	v, err, _ := s.group.Do(planKey, func() (interface{}, error) {
		return s.fetch(ctx, planKey)
	})
	if err != nil {
		log.Printf("[Plan] Fetch for %q failed, applying restrictive fallback: %v", planKey, err)
		return restrictiveRules(planKey, s.cfg.DefaultLeadTimeDay)
	}
	rules := v.(PlanRules)

	if s.redis != nil {
		if payload, err := json.Marshal(rules); err == nil {
			if err := s.redis.Set(ctx, cacheKey, payload, s.cfg.PlanCacheTTL).Err(); err != nil {
				log.Printf("[Plan] Warning: failed to cache rules for %q: %v", planKey, err)
			}
		}
	}
	return rules
}

type planLimitsResponse struct {
	ArtistLimit     int      `json:"artistLimit"`
	AllowConcurrent bool     `json:"allowConcurrent"`
	AllowedFormats  []string `json:"allowedFormats"`
	MinLeadTimeDays *int     `json:"minLeadTimeDays"`
}

func (s *PlanService) fetch(ctx context.Context, planKey string) (PlanRules, error) {
	var limits planLimitsResponse
	if err := s.getJSON(ctx, fmt.Sprintf("%s/plans/%s", s.cfg.PlanServiceURL, planKey), &limits); err != nil {
		return PlanRules{}, err
	}

	var fields map[string]FieldRule
	if err := s.getJSON(ctx, fmt.Sprintf("%s/plans/%s/fields", s.cfg.PlanServiceURL, planKey), &fields); err != nil {
		return PlanRules{}, err
	}

	rules := PlanRules{
		PlanKey:         planKey,
		ArtistLimit:     limits.ArtistLimit,
		AllowConcurrent: limits.AllowConcurrent,
		MinLeadTimeDays: s.cfg.DefaultLeadTimeDay,
		Fields:          fields,
	}
	if limits.MinLeadTimeDays != nil {
		rules.MinLeadTimeDays = *limits.MinLeadTimeDays
	}
	for _, f := range limits.AllowedFormats {
		switch models.ReleaseFormat(f) {
		case models.FormatSingle, models.FormatEP, models.FormatAlbum:
			rules.AllowedFormats = append(rules.AllowedFormats, models.ReleaseFormat(f))
		}
	}
	if len(rules.AllowedFormats) == 0 {
		rules.AllowedFormats = []models.ReleaseFormat{models.FormatSingle}
	}
	if rules.Fields == nil {
		rules.Fields = map[string]FieldRule{}
	}
	return rules, nil
}

func (s *PlanService) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if s.cfg.PlanServiceToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.PlanServiceToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("plan service returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
