package models

import (
	"fmt"
	"strings"
)

// Platform identifies one of the external streaming platforms an artist
// identity can be resolved against.
type Platform string

const (
	PlatformSpotify Platform = "spotify"
	PlatformApple   Platform = "apple"
	PlatformYouTube Platform = "youtube"
)

// Platforms lists all supported platforms in display order.
var Platforms = []Platform{PlatformSpotify, PlatformApple, PlatformYouTube}

// ProfileKind is the discriminator of the ProfileRef union.
type ProfileKind string

const (
	// ProfileUnresolved means no identity has been chosen yet.
	ProfileUnresolved ProfileKind = "unresolved"
	// ProfileNew is the deliberate "this is a new profile" sentinel.
	ProfileNew ProfileKind = "new"
	// ProfileResolved carries a rich ArtistProfile picked from search results.
	ProfileResolved ProfileKind = "profile"
	// ProfileURL is the legacy raw-string form (manually pasted URL).
	// It is upgradeable in place to ProfileResolved by hydration.
	ProfileURL ProfileKind = "url"
)

// ArtistProfile is a resolved identity on one platform.
type ArtistProfile struct {
	Platform   Platform `json:"platform"`
	ExternalID string   `json:"external_id"`
	Name       string   `json:"name"`
	ImageURL   string   `json:"image_url,omitempty"`
	URL        string   `json:"url"`
	Followers  *int64   `json:"followers,omitempty"`
}

// ProfileRef is the four-case union describing the state of one
// (owner, platform) identity slot. Exactly one case is active, selected by
// Kind; Profile is set only for ProfileResolved, RawURL only for ProfileURL.
type ProfileRef struct {
	Kind    ProfileKind    `json:"kind"`
	Profile *ArtistProfile `json:"profile,omitempty"`
	RawURL  string         `json:"raw_url,omitempty"`
}

// Unresolved returns the empty ProfileRef case.
func Unresolved() ProfileRef {
	return ProfileRef{Kind: ProfileUnresolved}
}

// Resolved wraps a rich profile.
func Resolved(p ArtistProfile) ProfileRef {
	return ProfileRef{Kind: ProfileResolved, Profile: &p}
}

// NewProfile returns the deliberate new-profile sentinel.
func NewProfile() ProfileRef {
	return ProfileRef{Kind: ProfileNew}
}

// RawURLRef wraps a manually entered URL.
func RawURLRef(url string) ProfileRef {
	return ProfileRef{Kind: ProfileURL, RawURL: url}
}

// IsSet reports whether the slot holds any deliberate choice.
func (r ProfileRef) IsSet() bool {
	return r.Kind == ProfileNew || r.Kind == ProfileResolved || r.Kind == ProfileURL
}

// Validate checks the union's internal consistency.
func (r ProfileRef) Validate() error {
	switch r.Kind {
	case ProfileUnresolved, ProfileNew:
		if r.Profile != nil || r.RawURL != "" {
			return fmt.Errorf("profile ref %q must not carry payload", r.Kind)
		}
		return nil
	case ProfileResolved:
		if r.Profile == nil {
			return fmt.Errorf("resolved profile ref missing profile")
		}
		return nil
	case ProfileURL:
		if r.RawURL == "" {
			return fmt.Errorf("url profile ref missing raw url")
		}
		return nil
	default:
		return fmt.Errorf("unknown profile ref kind %q", r.Kind)
	}
}

// Hydrate attempts to upgrade a legacy URL ref against one search candidate.
// Matching is by external ID or canonical URL containment. Idempotent: refs
// that are not ProfileURL are returned unchanged, so an already-rich profile
// is never downgraded or replaced.
func (r ProfileRef) Hydrate(candidate ArtistProfile) (ProfileRef, bool) {
	if r.Kind != ProfileURL || r.RawURL == "" {
		return r, false
	}
	if candidate.ExternalID != "" && strings.Contains(r.RawURL, candidate.ExternalID) {
		return Resolved(candidate), true
	}
	if candidate.URL != "" && (r.RawURL == candidate.URL || strings.Contains(candidate.URL, r.RawURL) || strings.Contains(r.RawURL, candidate.URL)) {
		return Resolved(candidate), true
	}
	return r, false
}

// ProfileSet holds one ProfileRef per platform.
type ProfileSet struct {
	Spotify ProfileRef `json:"spotify"`
	Apple   ProfileRef `json:"apple"`
	YouTube ProfileRef `json:"youtube"`
}

// EmptyProfileSet returns a set with all slots unresolved.
func EmptyProfileSet() ProfileSet {
	return ProfileSet{Spotify: Unresolved(), Apple: Unresolved(), YouTube: Unresolved()}
}

// Get returns the ref for a platform.
func (s ProfileSet) Get(p Platform) ProfileRef {
	switch p {
	case PlatformSpotify:
		return s.Spotify
	case PlatformApple:
		return s.Apple
	case PlatformYouTube:
		return s.YouTube
	}
	return Unresolved()
}

// Set replaces the ref for a platform and returns the updated set.
func (s ProfileSet) Set(p Platform, ref ProfileRef) ProfileSet {
	switch p {
	case PlatformSpotify:
		s.Spotify = ref
	case PlatformApple:
		s.Apple = ref
	case PlatformYouTube:
		s.YouTube = ref
	}
	return s
}

// SocialStatus is the yes/no linkage state for Instagram/Facebook.
type SocialStatus string

const (
	SocialYes SocialStatus = "yes"
	SocialNo  SocialStatus = "no"
)

// SocialLink is a proper variant for the Instagram/Facebook linkage; the
// legacy prefix-sniffing of raw strings is deliberately not carried over.
type SocialLink struct {
	Status SocialStatus `json:"status"`
	URL    string       `json:"url,omitempty"`
}
