package services

import (
	"context"

	"github.com/trackforge/backend/internal/models"
)

// SearchProvider abstracts one platform's artist search collaborator.
// Implementations return an ordered candidate list; transport or non-success
// failures surface as errors here and are degraded to empty results by the
// resolver, never propagated to the user.
type SearchProvider interface {
	Platform() models.Platform
	Search(ctx context.Context, query string, limit int) ([]models.ArtistProfile, error)
}
