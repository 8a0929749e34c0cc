package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/trackforge/backend/internal/config"
	"github.com/trackforge/backend/internal/models"
	"gorm.io/gorm"
)

func planStub(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/plans/indie":
			w.Write([]byte(`{"artistLimit":2,"allowConcurrent":true,"allowedFormats":["single","ep"],"minLeadTimeDays":2}`))
		case "/plans/indie/fields":
			w.Write([]byte(`{"record_label":{"allow":true,"required":false},"isrc":{"allow":true,"required":false},"featured_artists":{"allow":true,"required":false}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func submissionFixture(t *testing.T, planURL, submitURL string) (*SubmissionService, *gorm.DB) {
	t.Helper()
	db := testDB(t)
	cfg := &config.Config{
		PlanServiceURL:        planURL,
		PlanHTTPTimeout:       time.Second,
		PlanCacheTTL:          time.Minute,
		DefaultLeadTimeDay:    7,
		SubmissionURL:         submitURL,
		SubmissionHTTPTimeout: time.Second,
	}
	plans := NewPlanService(cfg, nil)
	coverArt := NewCoverArtService(db, cfg, nil, nil)
	return NewSubmissionService(db, cfg, plans, coverArt), db
}

// completeDraft builds a draft that passes every submission check.
func completeDraft(t *testing.T, db *gorm.DB) *models.Release {
	t.Helper()
	date := time.Now().UTC().AddDate(0, 0, 30)
	release := &models.Release{
		UserID:             uuid.New(),
		Title:              "Night Drive",
		PrimaryArtist:      "Vela",
		Format:             models.FormatSingle,
		Language:           "en",
		ReleaseDate:        &date,
		Genre:              "Electronic",
		PlanKey:            "indie",
		Profiles:           models.EmptyProfileSet(),
		CoverArtKey:        "artwork/x/cover.png",
		CoverArtState:      models.CoverAccepted,
		AckRightsOwnership: true,
		AckNoPromoBots:     true,
		AckNameUsage:       true,
		AckTerms:           true,
		Status:             models.ReleaseDraft,
	}
	if err := db.Create(release).Error; err != nil {
		t.Fatalf("create release: %v", err)
	}

	af := models.AudioFile{
		ReleaseID:  release.ID,
		FileName:   "master.wav",
		Container:  models.ContainerWAV,
		SampleRate: 44100,
		BitDepth:   16,
		StorageKey: "audio/x/master.wav",
	}
	if err := db.Create(&af).Error; err != nil {
		t.Fatalf("create audio: %v", err)
	}
	track := models.Track{
		ReleaseID:   release.ID,
		Position:    0,
		Title:       "Night Drive",
		AudioFileID: &af.ID,
		ArtistName:  "Vela",
		Profiles:    models.EmptyProfileSet(),
	}
	if err := db.Create(&track).Error; err != nil {
		t.Fatalf("create track: %v", err)
	}

	release.Tracks = []models.Track{track}
	release.AudioFiles = []models.AudioFile{af}
	return release
}

func violationFields(violations []Violation) map[string]bool {
	fields := make(map[string]bool, len(violations))
	for _, v := range violations {
		fields[v.Field] = true
	}
	return fields
}

func TestValidatePassesCompleteDraft(t *testing.T) {
	plan := planStub(t)
	defer plan.Close()
	svc, db := submissionFixture(t, plan.URL, "")

	release := completeDraft(t, db)
	if violations := svc.Validate(context.Background(), release); len(violations) != 0 {
		t.Fatalf("complete draft reported violations: %+v", violations)
	}
}

func TestValidateCollectsAllViolationsAtOnce(t *testing.T) {
	plan := planStub(t)
	defer plan.Close()
	svc, db := submissionFixture(t, plan.URL, "")

	release := completeDraft(t, db)
	release.Title = "SHOUT LOUDER" // irregular caps without the ack
	release.AckTerms = false       // unticked mandatory ack
	release.CoverArtState = models.CoverPending
	soon := time.Now().UTC().AddDate(0, 0, 1)
	release.ReleaseDate = &soon // inside the lead-time window
	release.Tracks[0].AudioFileID = nil
	release.Tracks[0].ISRC = "not-an-isrc"

	fields := violationFields(svc.Validate(context.Background(), release))
	for _, want := range []string{
		"ack_irregular_caps",
		"ack_terms",
		"cover_art",
		"release_date",
		"tracks[0].audio",
		"tracks[0].isrc",
	} {
		if !fields[want] {
			t.Errorf("missing violation for %s (got %v)", want, fields)
		}
	}
}

func TestValidateEnforcesPlanRules(t *testing.T) {
	plan := planStub(t)
	defer plan.Close()
	svc, db := submissionFixture(t, plan.URL, "")

	release := completeDraft(t, db)
	release.Format = models.FormatAlbum                           // plan allows single/ep only
	release.SecondaryArtists = []string{"Guest One", "Guest Two"} // 3 distinct > limit 2

	fields := violationFields(svc.Validate(context.Background(), release))
	if !fields["format"] {
		t.Error("disallowed format not reported")
	}
	if !fields["artists"] {
		t.Error("artist ceiling violation not reported")
	}
}

func TestValidateCapsAckOnlyWhenNeeded(t *testing.T) {
	plan := planStub(t)
	defer plan.Close()
	svc, db := submissionFixture(t, plan.URL, "")

	release := completeDraft(t, db)
	// Normal casing: no caps ack demanded even though it is unticked.
	if fields := violationFields(svc.Validate(context.Background(), release)); fields["ack_irregular_caps"] {
		t.Fatal("caps ack demanded for regular casing")
	}

	release.Tracks[0].ArtistName = "DJ SCREAMCORE MAXIMUS"
	if fields := violationFields(svc.Validate(context.Background(), release)); !fields["ack_irregular_caps"] {
		t.Fatal("caps ack not demanded for shouty track artist")
	}
	release.AckIrregularCaps = true
	if fields := violationFields(svc.Validate(context.Background(), release)); fields["ack_irregular_caps"] {
		t.Fatal("ticked caps ack still reported")
	}
}

func TestSubmitDeliversAndRemembersIdentity(t *testing.T) {
	plan := planStub(t)
	defer plan.Close()
	distributor := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload submissionPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload.Title != "Night Drive" || len(payload.Tracks) != 1 {
			t.Errorf("unexpected payload: %+v", payload)
		}
		if payload.Tracks[0].AudioKey != "audio/x/master.wav" {
			t.Errorf("track audio key = %q", payload.Tracks[0].AudioKey)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"recordId":"rec_8817"}`))
	}))
	defer distributor.Close()

	svc, db := submissionFixture(t, plan.URL, distributor.URL)
	release := completeDraft(t, db)

	// A leftover draft-phase checklist must not outlive the submission.
	svc.coverArt.setResult(release.ID, &CoverArtResult{
		State:     models.CoverAccepted,
		Checklist: mapDefects(nil),
	})

	submitted, err := svc.Submit(context.Background(), release.UserID, release.ID)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if submitted.Status != models.ReleaseSubmitted || submitted.SubmittedRecordID != "rec_8817" {
		t.Fatalf("release = %q / %q", submitted.Status, submitted.SubmittedRecordID)
	}
	if got := svc.coverArt.Checklist(release.ID); got.State != models.CoverPending {
		t.Fatalf("checklist state = %q after submit, want dropped back to pending", got.State)
	}

	var identity models.ArtistIdentity
	if err := db.First(&identity, "user_id = ? AND name = ?", release.UserID, "Vela").Error; err != nil {
		t.Fatalf("artist identity not remembered: %v", err)
	}

	// A second submit must be refused.
	if _, err := svc.Submit(context.Background(), release.UserID, release.ID); !errors.Is(err, ErrReleaseSubmitted) {
		t.Fatalf("resubmit error = %v, want ErrReleaseSubmitted", err)
	}
}

func TestSubmitRejectedWholeOnViolations(t *testing.T) {
	plan := planStub(t)
	defer plan.Close()
	delivered := false
	distributor := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered = true
		w.Write([]byte(`{"recordId":"never"}`))
	}))
	defer distributor.Close()

	svc, db := submissionFixture(t, plan.URL, distributor.URL)
	release := completeDraft(t, db)
	db.Model(&models.Release{}).Where("id = ?", release.ID).Update("ack_terms", false)

	_, err := svc.Submit(context.Background(), release.UserID, release.ID)
	var notSubmittable *ErrNotSubmittable
	if !errors.As(err, &notSubmittable) {
		t.Fatalf("error = %v, want ErrNotSubmittable", err)
	}
	if delivered {
		t.Fatal("violating draft was delivered")
	}

	var reloaded models.Release
	db.First(&reloaded, "id = ?", release.ID)
	if reloaded.Status != models.ReleaseDraft {
		t.Fatalf("status = %q, want draft", reloaded.Status)
	}
}
