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

// SpotifySearch queries the Spotify artist search collaborator.
type SpotifySearch struct {
	cfg    *config.Config
	client *http.Client
}

func NewSpotifySearch(cfg *config.Config) *SpotifySearch {
	return &SpotifySearch{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.SearchHTTPTimeout},
	}
}

func (s *SpotifySearch) Platform() models.Platform { return models.PlatformSpotify }

type spotifySearchResponse struct {
	Artists struct {
		Items []struct {
			ID     string `json:"id"`
			Name   string `json:"name"`
			Images []struct {
				URL string `json:"url"`
			} `json:"images"`
			ExternalURLs struct {
				Spotify string `json:"spotify"`
			} `json:"external_urls"`
			Followers struct {
				Total int64 `json:"total"`
			} `json:"followers"`
		} `json:"items"`
	} `json:"artists"`
}

func (s *SpotifySearch) Search(ctx context.Context, query string, limit int) ([]models.ArtistProfile, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("type", "artist")
	q.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.SpotifySearchURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if s.cfg.SpotifyAPIToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.SpotifyAPIToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("spotify search returned status %d", resp.StatusCode)
	}

	var body spotifySearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode spotify response: %w", err)
	}

	profiles := make([]models.ArtistProfile, 0, len(body.Artists.Items))
	for _, item := range body.Artists.Items {
		p := models.ArtistProfile{
			Platform:   models.PlatformSpotify,
			ExternalID: item.ID,
			Name:       item.Name,
			URL:        item.ExternalURLs.Spotify,
		}
		if len(item.Images) > 0 {
			p.ImageURL = item.Images[0].URL
		}
		if item.Followers.Total > 0 {
			followers := item.Followers.Total
			p.Followers = &followers
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}
