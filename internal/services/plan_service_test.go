package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/trackforge/backend/internal/config"
	"github.com/trackforge/backend/internal/models"
)

func planConfig(url string) *config.Config {
	return &config.Config{
		PlanServiceURL:     url,
		PlanHTTPTimeout:    time.Second,
		PlanCacheTTL:       time.Minute,
		DefaultLeadTimeDay: 7,
	}
}

func TestRulesFetchesAndMapsFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/plans/pro":
			w.Write([]byte(`{"artistLimit":0,"allowConcurrent":true,"allowedFormats":["single","ep","album"],"minLeadTimeDays":2}`))
		case "/plans/pro/fields":
			w.Write([]byte(`{"record_label":{"allow":true,"required":false},"isrc":{"allow":true,"required":true}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	svc := NewPlanService(planConfig(server.URL), nil)
	rules := svc.Rules(context.Background(), "pro", false)

	if rules.Degraded {
		t.Fatal("healthy fetch must not be degraded")
	}
	if !rules.AllowsFormat(models.FormatAlbum) {
		t.Error("album should be allowed")
	}
	if !rules.WithinArtistLimit(25) {
		t.Error("artistLimit 0 means unbounded")
	}
	if rules.MinLeadTimeDays != 2 {
		t.Errorf("MinLeadTimeDays = %d, want 2", rules.MinLeadTimeDays)
	}
	if !rules.FieldAllowed("record_label") || rules.FieldRequired("record_label") {
		t.Error("record_label should be allowed, optional")
	}
	if !rules.FieldRequired("isrc") {
		t.Error("isrc should be required")
	}
	if rules.FieldAllowed("featured_artists") {
		t.Error("unlisted fields are not allowed")
	}
}

func TestRulesFallsBackRestrictiveOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	svc := NewPlanService(planConfig(server.URL), nil)
	rules := svc.Rules(context.Background(), "pro", false)

	if !rules.Degraded {
		t.Fatal("collaborator failure must yield the degraded rule set")
	}
	if rules.ArtistLimit != 1 {
		t.Errorf("degraded ArtistLimit = %d, want 1", rules.ArtistLimit)
	}
	if rules.AllowsFormat(models.FormatEP) || !rules.AllowsFormat(models.FormatSingle) {
		t.Error("degraded rules permit singles only")
	}
	if rules.FieldAllowed("record_label") {
		t.Error("degraded rules expose no optional fields")
	}
	if rules.MinLeadTimeDays != 7 {
		t.Errorf("degraded MinLeadTimeDays = %d, want configured default", rules.MinLeadTimeDays)
	}
}

func TestRulesRecoverAfterOutage(t *testing.T) {
	var healthy atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		switch r.URL.Path {
		case "/plans/starter":
			w.Write([]byte(`{"artistLimit":1,"allowConcurrent":false,"allowedFormats":["single","ep"]}`))
		case "/plans/starter/fields":
			w.Write([]byte(`{}`))
		}
	}))
	defer server.Close()

	svc := NewPlanService(planConfig(server.URL), nil)

	if rules := svc.Rules(context.Background(), "starter", false); !rules.Degraded {
		t.Fatal("outage should degrade")
	}

	// The fallback is never cached, so the very next call sees the recovery.
	healthy.Store(true)
	rules := svc.Rules(context.Background(), "starter", false)
	if rules.Degraded {
		t.Fatal("recovered collaborator should replace the fallback immediately")
	}
	if !rules.AllowsFormat(models.FormatEP) {
		t.Error("recovered rules should permit EPs")
	}
	if rules.MinLeadTimeDays != 7 {
		t.Errorf("missing minLeadTimeDays should use the default, got %d", rules.MinLeadTimeDays)
	}
}
