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

// YouTubeSearch queries the YouTube channel search collaborator.
type YouTubeSearch struct {
	cfg    *config.Config
	client *http.Client
}

func NewYouTubeSearch(cfg *config.Config) *YouTubeSearch {
	return &YouTubeSearch{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.SearchHTTPTimeout},
	}
}

func (s *YouTubeSearch) Platform() models.Platform { return models.PlatformYouTube }

type youtubeSearchResponse struct {
	Items []struct {
		ID struct {
			ChannelID string `json:"channelId"`
		} `json:"id"`
		Snippet struct {
			ChannelTitle string `json:"channelTitle"`
			Thumbnails   struct {
				Default struct {
					URL string `json:"url"`
				} `json:"default"`
			} `json:"thumbnails"`
		} `json:"snippet"`
	} `json:"items"`
}

func (s *YouTubeSearch) Search(ctx context.Context, query string, limit int) ([]models.ArtistProfile, error) {
	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("type", "channel")
	q.Set("q", query)
	q.Set("maxResults", strconv.Itoa(limit))
	if s.cfg.YouTubeAPIKey != "" {
		q.Set("key", s.cfg.YouTubeAPIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.YouTubeSearchURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("youtube search returned status %d", resp.StatusCode)
	}

	var body youtubeSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode youtube response: %w", err)
	}

	profiles := make([]models.ArtistProfile, 0, len(body.Items))
	for _, item := range body.Items {
		if item.ID.ChannelID == "" {
			continue
		}
		profiles = append(profiles, models.ArtistProfile{
			Platform:   models.PlatformYouTube,
			ExternalID: item.ID.ChannelID,
			Name:       item.Snippet.ChannelTitle,
			ImageURL:   item.Snippet.Thumbnails.Default.URL,
			URL:        "https://www.youtube.com/channel/" + item.ID.ChannelID,
		})
	}
	return profiles, nil
}
