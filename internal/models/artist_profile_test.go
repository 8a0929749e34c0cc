package models

import "testing"

func TestHydrateUpgradesURLRef(t *testing.T) {
	candidate := ArtistProfile{
		Platform:   PlatformSpotify,
		ExternalID: "4gzpq5DPGxSnKTe4SA8HAU",
		Name:       "Vela",
		URL:        "https://open.spotify.com/artist/4gzpq5DPGxSnKTe4SA8HAU",
	}

	ref := RawURLRef("https://open.spotify.com/artist/4gzpq5DPGxSnKTe4SA8HAU")
	upgraded, ok := ref.Hydrate(candidate)
	if !ok {
		t.Fatal("matching URL ref should hydrate")
	}
	if upgraded.Kind != ProfileResolved || upgraded.Profile == nil {
		t.Fatalf("hydrated ref = %+v, want resolved", upgraded)
	}
	if upgraded.Profile.Name != "Vela" {
		t.Errorf("hydrated profile name = %q", upgraded.Profile.Name)
	}
}

func TestHydrateIsIdempotent(t *testing.T) {
	candidate := ArtistProfile{Platform: PlatformSpotify, ExternalID: "abc123", Name: "Old"}
	resolved := Resolved(ArtistProfile{Platform: PlatformSpotify, ExternalID: "xyz789", Name: "Chosen"})

	// An already-rich ref is never replaced, even by a matching candidate.
	again, ok := resolved.Hydrate(candidate)
	if ok {
		t.Fatal("resolved ref must not hydrate again")
	}
	if again.Profile.Name != "Chosen" {
		t.Errorf("profile changed to %q", again.Profile.Name)
	}

	for _, ref := range []ProfileRef{Unresolved(), NewProfile()} {
		if _, ok := ref.Hydrate(candidate); ok {
			t.Errorf("ref kind %q must not hydrate", ref.Kind)
		}
	}
}

func TestHydrateNonMatchingCandidate(t *testing.T) {
	ref := RawURLRef("https://open.spotify.com/artist/aaa")
	got, ok := ref.Hydrate(ArtistProfile{ExternalID: "bbb", URL: "https://open.spotify.com/artist/bbb"})
	if ok {
		t.Fatal("non-matching candidate must not hydrate")
	}
	if got.Kind != ProfileURL || got.RawURL != ref.RawURL {
		t.Errorf("ref mutated: %+v", got)
	}
}

func TestProfileRefValidate(t *testing.T) {
	cases := []struct {
		name    string
		ref     ProfileRef
		wantErr bool
	}{
		{"unresolved", Unresolved(), false},
		{"new", NewProfile(), false},
		{"resolved", Resolved(ArtistProfile{Name: "x"}), false},
		{"url", RawURLRef("https://example.com/a"), false},
		{"resolved without payload", ProfileRef{Kind: ProfileResolved}, true},
		{"url without payload", ProfileRef{Kind: ProfileURL}, true},
		{"new with payload", ProfileRef{Kind: ProfileNew, RawURL: "x"}, true},
		{"unknown kind", ProfileRef{Kind: "bogus"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.ref.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
