package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/trackforge/backend/internal/config"
	"github.com/trackforge/backend/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	// One named in-memory database per test, shared across the pool's
	// connections.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", url.PathEscape(t.Name()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func pngFixture(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func coverConfig(complianceURL, assetsPath string) *config.Config {
	return &config.Config{
		ComplianceURL:            complianceURL,
		ComplianceHTTPTimeout:    time.Second,
		CoverArtMinPixels:        4,
		CoverArtMaxSize:          10 * 1024 * 1024,
		MediaArtworkBucket:       "artwork",
		LocalAssetsPath:          assetsPath,
		UploadWholeFileThreshold: 1 << 20,
		UploadPartSize:           1 << 20,
		UploadPartConcurrency:    1,
	}
}

func complianceStub(status string, defects []ValidationError) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		resp := complianceResponse{Status: status, Errors: defects}
		body, _ := json.Marshal(resp)
		w.Write(body)
	}))
}

func newCoverFixture(t *testing.T, server *httptest.Server) (*CoverArtService, *fakeBlobStore, *gorm.DB, *models.Release) {
	t.Helper()
	db := testDB(t)
	cfg := coverConfig(server.URL, t.TempDir())
	store := newFakeBlobStore()
	upload := NewUploadService(store, cfg)
	storage := NewStorageService(cfg)
	svc := NewCoverArtService(db, cfg, upload, storage)

	release := &models.Release{
		Title:         "Night Drive",
		PrimaryArtist: "Vela",
		Format:        models.FormatSingle,
		Profiles:      models.EmptyProfileSet(),
	}
	if err := db.Create(release).Error; err != nil {
		t.Fatalf("create release: %v", err)
	}
	return svc, store, db, release
}

func TestRejectedCoverNeverReachesStorage(t *testing.T) {
	server := complianceStub("rejected", []ValidationError{
		{Code: "NOT_SQUARE", Message: "image is 3000x2000", Severity: "rejecting"},
	})
	defer server.Close()

	svc, store, db, release := newCoverFixture(t, server)

	result, err := svc.ProcessCoverArt(context.Background(), release, "cover.png", pngFixture(t))
	if err != nil {
		t.Fatalf("ProcessCoverArt: %v", err)
	}
	if result.State != models.CoverRejected {
		t.Fatalf("state = %q, want rejected", result.State)
	}
	if len(store.objects) != 0 {
		t.Fatal("rejected cover was uploaded")
	}
	if result.StorageKey != "" {
		t.Fatal("rejected result carries a storage key")
	}

	// The stored reference is cleared.
	var reloaded models.Release
	if err := db.First(&reloaded, "id = ?", release.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.CoverArtKey != "" || reloaded.CoverArtState != models.CoverRejected {
		t.Fatalf("release = key %q state %q, want cleared/rejected", reloaded.CoverArtKey, reloaded.CoverArtState)
	}

	// NOT_SQUARE falsifies the square-aspect item; unrelated items stay green.
	if result.Checklist[ReqSquare] != ItemError {
		t.Error("square_aspect should be in error")
	}
	if result.Checklist[ReqResolution] != ItemSuccess {
		t.Error("resolution should be success after a completed check")
	}
}

func TestWarningCoverIsStored(t *testing.T) {
	server := complianceStub("warning", []ValidationError{
		{Code: "BLURRY_IMAGE", Message: "slightly soft focus", Severity: "warning"},
	})
	defer server.Close()

	svc, store, db, release := newCoverFixture(t, server)

	result, err := svc.ProcessCoverArt(context.Background(), release, "cover.png", pngFixture(t))
	if err != nil {
		t.Fatalf("ProcessCoverArt: %v", err)
	}
	if result.State != models.CoverWarning {
		t.Fatalf("state = %q, want warning", result.State)
	}
	if result.StorageKey == "" {
		t.Fatal("warning verdict should still store the cover")
	}
	if _, ok := store.objects["artwork/"+result.StorageKey]; !ok {
		t.Fatal("cover missing from blob store")
	}
	if result.Checklist[ReqSharpness] != ItemError {
		t.Error("not_blurred should be in error")
	}

	var reloaded models.Release
	db.First(&reloaded, "id = ?", release.ID)
	if reloaded.CoverArtKey != result.StorageKey {
		t.Errorf("release key %q, want %q", reloaded.CoverArtKey, result.StorageKey)
	}
}

func TestComplianceOutageFailsClosed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	svc, store, db, release := newCoverFixture(t, server)

	// Simulate a previously accepted cover that must survive the outage.
	db.Model(&models.Release{}).Where("id = ?", release.ID).Updates(map[string]interface{}{
		"cover_art_key":   "artwork/old/cover.png",
		"cover_art_state": models.CoverAccepted,
	})

	_, err := svc.ProcessCoverArt(context.Background(), release, "new.png", pngFixture(t))
	if err == nil {
		t.Fatal("collaborator outage must surface an error")
	}
	if !errors.Is(err, ErrComplianceUnavailable) {
		t.Fatalf("outage error = %v, want ErrComplianceUnavailable", err)
	}
	if len(store.objects) != 0 {
		t.Fatal("nothing may be uploaded without a verdict")
	}

	var reloaded models.Release
	db.First(&reloaded, "id = ?", release.ID)
	if reloaded.CoverArtKey != "artwork/old/cover.png" {
		t.Fatal("previous cover must survive a failed check")
	}
}

func TestNonImageRejectedLocally(t *testing.T) {
	server := complianceStub("accepted", nil)
	defer server.Close()

	svc, store, _, release := newCoverFixture(t, server)

	_, err := svc.ProcessCoverArt(context.Background(), release, "cover.txt", []byte("not an image"))
	if err == nil {
		t.Fatal("non-image data must be rejected before the remote check")
	}
	// A local gate is the caller's fault, not an infrastructure failure.
	if errors.Is(err, ErrComplianceUnavailable) || errors.Is(err, ErrCoverUploadFailed) {
		t.Fatalf("local rejection wrapped as infrastructure failure: %v", err)
	}
	if len(store.objects) != 0 {
		t.Fatal("non-image data was uploaded")
	}
}

func TestChecklistDefaultsToPending(t *testing.T) {
	server := complianceStub("accepted", nil)
	defer server.Close()
	svc, _, _, release := newCoverFixture(t, server)

	result := svc.Checklist(release.ID)
	if result.State != models.CoverPending {
		t.Fatalf("state = %q, want pending", result.State)
	}
	for req, state := range result.Checklist {
		if state != ItemPending {
			t.Errorf("%s = %q, want pending before any check", req, state)
		}
	}
	if len(result.Checklist) != len(ChecklistRequirements) {
		t.Errorf("checklist has %d items, want %d", len(result.Checklist), len(ChecklistRequirements))
	}
}

func TestRevalidationResetsChecklist(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{}, 1)
	proceed := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 2 {
			started <- struct{}{}
			<-proceed
		}
		w.Header().Set("Content-Type", "application/json")
		body, _ := json.Marshal(complianceResponse{Status: "warning", Errors: []ValidationError{
			{Code: "BLURRY_IMAGE", Message: "soft focus", Severity: "warning"},
		}})
		w.Write(body)
	}))
	defer server.Close()

	svc, _, _, release := newCoverFixture(t, server)
	img := pngFixture(t)

	first, err := svc.ProcessCoverArt(context.Background(), release, "cover.png", img)
	if err != nil {
		t.Fatalf("first ProcessCoverArt: %v", err)
	}
	if first.Checklist[ReqSharpness] != ItemError {
		t.Fatal("first attempt should mark not_blurred as error")
	}

	done := make(chan error, 1)
	go func() {
		_, err := svc.ProcessCoverArt(context.Background(), release, "cover2.png", img)
		done <- err
	}()

	// While the second check is in flight, the previous file's per-item
	// states must already be gone.
	<-started
	mid := svc.Checklist(release.ID)
	if mid.State != models.CoverValidating {
		t.Errorf("mid-flight state = %q, want validating", mid.State)
	}
	for req, state := range mid.Checklist {
		if state != ItemPending {
			t.Errorf("%s = %q during re-validation, want pending", req, state)
		}
	}

	close(proceed)
	if err := <-done; err != nil {
		t.Fatalf("second ProcessCoverArt: %v", err)
	}
	if final := svc.Checklist(release.ID); final.Checklist[ReqSharpness] != ItemError {
		t.Error("second verdict not applied after re-validation")
	}
}
