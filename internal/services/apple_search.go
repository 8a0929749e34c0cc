package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/trackforge/backend/internal/config"
	"github.com/trackforge/backend/internal/models"
)

// AppleSearch queries the Apple Music artist search collaborator.
type AppleSearch struct {
	cfg    *config.Config
	client *http.Client
}

func NewAppleSearch(cfg *config.Config) *AppleSearch {
	return &AppleSearch{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.SearchHTTPTimeout},
	}
}

func (s *AppleSearch) Platform() models.Platform { return models.PlatformApple }

type appleSearchResponse struct {
	Results []struct {
		ArtistID      int64  `json:"artistId"`
		ArtistName    string `json:"artistName"`
		ArtistLinkURL string `json:"artistLinkUrl"`
		ArtworkURL    string `json:"artworkUrl100"`
	} `json:"results"`
}

func (s *AppleSearch) Search(ctx context.Context, query string, limit int) ([]models.ArtistProfile, error) {
	q := url.Values{}
	q.Set("term", query)
	q.Set("entity", "musicArtist")
	q.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.AppleSearchURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if s.cfg.AppleAPIToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.AppleAPIToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("apple search returned status %d", resp.StatusCode)
	}

	var body appleSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode apple response: %w", err)
	}

	profiles := make([]models.ArtistProfile, 0, len(body.Results))
	for _, item := range body.Results {
		profiles = append(profiles, models.ArtistProfile{
			Platform:   models.PlatformApple,
			ExternalID: strconv.FormatInt(item.ArtistID, 10),
			Name:       item.ArtistName,
			ImageURL:   item.ArtworkURL,
			URL:        item.ArtistLinkURL,
		})
	}
	return profiles, nil
}
