package services

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/trackforge/backend/internal/config"
	"github.com/trackforge/backend/internal/models"
	"gorm.io/gorm"
)

// wavFixture assembles a minimal valid 44.1 kHz 16-bit PCM header.
func wavFixture() []byte {
	buf := make([]byte, 0, 44)
	buf = append(buf, []byte("RIFF")...)
	buf = append(buf, 0, 0, 0, 0)
	buf = append(buf, []byte("WAVE")...)
	buf = append(buf, []byte("fmt ")...)
	buf = binary.LittleEndian.AppendUint32(buf, 16)
	buf = binary.LittleEndian.AppendUint16(buf, 1)
	buf = binary.LittleEndian.AppendUint16(buf, 2)
	buf = binary.LittleEndian.AppendUint32(buf, 44100)
	buf = binary.LittleEndian.AppendUint32(buf, 44100*2*16/8)
	buf = binary.LittleEndian.AppendUint16(buf, 2*16/8)
	buf = binary.LittleEndian.AppendUint16(buf, 16)
	buf = append(buf, []byte("data")...)
	buf = binary.LittleEndian.AppendUint32(buf, 0)
	return buf
}

func releaseFixture(t *testing.T, planURL string) (*ReleaseService, *fakeBlobStore, *gorm.DB) {
	t.Helper()
	db := testDB(t)
	cfg := &config.Config{
		MediaAudioBucket:         "audio",
		LocalAssetsPath:          t.TempDir(),
		UploadWholeFileThreshold: 1 << 20,
		UploadPartSize:           1 << 20,
		UploadPartConcurrency:    1,
		UploadMaxAudioSize:       1 << 20,
		PlanServiceURL:           planURL,
		PlanHTTPTimeout:          time.Second,
		PlanCacheTTL:             time.Minute,
		DefaultLeadTimeDay:       7,
	}
	store := newFakeBlobStore()
	upload := NewUploadService(store, cfg)
	storage := NewStorageService(cfg)
	plans := NewPlanService(cfg, nil)
	return NewReleaseService(db, cfg, upload, storage, plans), store, db
}

func TestAddAudioFileValidatesUploadsAndPersists(t *testing.T) {
	plan := planStub(t)
	defer plan.Close()
	svc, store, _ := releaseFixture(t, plan.URL)

	userID := uuid.New()
	release, err := svc.CreateRelease(context.Background(), userID, "indie", models.FormatEP)
	if err != nil {
		t.Fatalf("CreateRelease: %v", err)
	}

	got, track, err := svc.AddAudioFile(context.Background(), userID, release.ID, "midnight_run.wav", wavFixture(), nil)
	if err != nil {
		t.Fatalf("AddAudioFile: %v", err)
	}
	if track.Title != "midnight run" {
		t.Errorf("auto-paired title = %q", track.Title)
	}
	if len(got.AudioFiles) != 1 || got.AudioFiles[0].SampleRate != 44100 {
		t.Fatalf("audio file not registered: %+v", got.AudioFiles)
	}
	wantSum := sha256.Sum256(wavFixture())
	if got.AudioFiles[0].Checksum != hex.EncodeToString(wantSum[:]) {
		t.Errorf("checksum = %q, want the master's sha256", got.AudioFiles[0].Checksum)
	}
	if _, ok := store.objects["audio/"+got.AudioFiles[0].StorageKey]; !ok {
		t.Fatal("master not in blob store")
	}

	// Round-trips through the database.
	reloaded, err := svc.GetRelease(userID, release.ID)
	if err != nil {
		t.Fatalf("GetRelease: %v", err)
	}
	if len(reloaded.Tracks) != 1 || len(reloaded.AudioFiles) != 1 {
		t.Fatalf("persisted %d tracks / %d files", len(reloaded.Tracks), len(reloaded.AudioFiles))
	}
	if reloaded.Tracks[0].AudioFileID == nil || *reloaded.Tracks[0].AudioFileID != reloaded.AudioFiles[0].ID {
		t.Fatal("link not persisted")
	}
}

func TestAddAudioFileRejectsBadMasterBeforeStorage(t *testing.T) {
	plan := planStub(t)
	defer plan.Close()
	svc, store, _ := releaseFixture(t, plan.URL)

	userID := uuid.New()
	release, err := svc.CreateRelease(context.Background(), userID, "indie", models.FormatSingle)
	if err != nil {
		t.Fatalf("CreateRelease: %v", err)
	}

	if _, _, err := svc.AddAudioFile(context.Background(), userID, release.ID, "demo.mp3", []byte("ID3 not a wav"), nil); err == nil {
		t.Fatal("invalid master must be rejected")
	}
	if len(store.objects) != 0 {
		t.Fatal("rejected master reached storage")
	}

	reloaded, _ := svc.GetRelease(userID, release.ID)
	if len(reloaded.AudioFiles) != 0 {
		t.Fatal("rejected master was registered")
	}
}

func TestCreateReleaseRejectsDisallowedFormat(t *testing.T) {
	plan := planStub(t) // indie plan allows single and ep only
	defer plan.Close()
	svc, _, _ := releaseFixture(t, plan.URL)

	_, err := svc.CreateRelease(context.Background(), uuid.New(), "indie", models.FormatAlbum)
	if !errors.Is(err, ErrPlanViolation) {
		t.Fatalf("err = %v, want ErrPlanViolation", err)
	}
}

func TestUpdateTrackLinkConflictRolledBack(t *testing.T) {
	plan := planStub(t)
	defer plan.Close()
	svc, _, _ := releaseFixture(t, plan.URL)

	userID := uuid.New()
	release, _ := svc.CreateRelease(context.Background(), userID, "indie", models.FormatEP)
	_, first, err := svc.AddAudioFile(context.Background(), userID, release.ID, "one.wav", wavFixture(), nil)
	if err != nil {
		t.Fatalf("AddAudioFile: %v", err)
	}
	_, second, err := svc.AddTrack(userID, release.ID, "B Side")
	if err != nil {
		t.Fatalf("AddTrack: %v", err)
	}

	// Second track tries to steal the first track's file.
	audioID := *first.AudioFileID
	_, err = svc.UpdateTrack(context.Background(), userID, release.ID, second.ID, TrackUpdate{AudioFileID: &audioID})
	if !errors.Is(err, models.ErrAudioAlreadyLinked) {
		t.Fatalf("err = %v, want ErrAudioAlreadyLinked", err)
	}

	reloaded, _ := svc.GetRelease(userID, release.ID)
	if reloaded.FindTrack(second.ID).AudioFileID != nil {
		t.Fatal("rejected link was persisted")
	}
	if got := reloaded.FindTrack(first.ID).AudioFileID; got == nil || *got != audioID {
		t.Fatal("original link lost")
	}
}

func TestUpdateReleaseIgnoresUnsetFields(t *testing.T) {
	plan := planStub(t)
	defer plan.Close()
	svc, _, _ := releaseFixture(t, plan.URL)

	userID := uuid.New()
	release, _ := svc.CreateRelease(context.Background(), userID, "indie", models.FormatSingle)

	title := "Night Drive"
	artist := "Vela"
	if _, err := svc.UpdateRelease(context.Background(), userID, release.ID, ReleaseUpdate{Title: &title, PrimaryArtist: &artist}); err != nil {
		t.Fatalf("first patch: %v", err)
	}

	genre := "Electronic"
	updated, err := svc.UpdateRelease(context.Background(), userID, release.ID, ReleaseUpdate{Genre: &genre})
	if err != nil {
		t.Fatalf("second patch: %v", err)
	}
	if updated.Title != "Night Drive" || updated.PrimaryArtist != "Vela" {
		t.Fatal("nil patch fields must leave earlier values untouched")
	}
	if updated.Genre != "Electronic" {
		t.Errorf("genre = %q", updated.Genre)
	}
}

func TestUpdateReleaseEnforcesArtistCeiling(t *testing.T) {
	plan := planStub(t) // indie plan: artistLimit 2
	defer plan.Close()
	svc, _, _ := releaseFixture(t, plan.URL)

	userID := uuid.New()
	release, _ := svc.CreateRelease(context.Background(), userID, "indie", models.FormatSingle)

	artist := "Vela"
	guests := []string{"Guest One", "Guest Two"}
	_, err := svc.UpdateRelease(context.Background(), userID, release.ID, ReleaseUpdate{
		PrimaryArtist:    &artist,
		SecondaryArtists: &guests,
	})
	if !errors.Is(err, ErrPlanViolation) {
		t.Fatalf("err = %v, want ErrPlanViolation", err)
	}

	reloaded, _ := svc.GetRelease(userID, release.ID)
	if len(reloaded.SecondaryArtists) != 0 {
		t.Fatal("rejected patch was partially applied")
	}
}

func TestGetReleaseChecksOwnership(t *testing.T) {
	plan := planStub(t)
	defer plan.Close()
	svc, _, _ := releaseFixture(t, plan.URL)

	owner := uuid.New()
	release, _ := svc.CreateRelease(context.Background(), owner, "indie", models.FormatSingle)

	if _, err := svc.GetRelease(uuid.New(), release.ID); !errors.Is(err, ErrReleaseNotFound) {
		t.Fatalf("foreign caller got %v, want ErrReleaseNotFound", err)
	}
}

func TestDiscardReleaseDropsBlobsAndTransientState(t *testing.T) {
	plan := planStub(t)
	defer plan.Close()
	svc, store, db := releaseFixture(t, plan.URL)

	resolver := NewArtistResolverService(db, resolverConfig(), nil)
	coverArt := NewCoverArtService(db, svc.cfg, nil, nil)
	svc.AttachCleanup(resolver, coverArt)

	userID := uuid.New()
	release, _ := svc.CreateRelease(context.Background(), userID, "indie", models.FormatEP)
	if _, _, err := svc.AddAudioFile(context.Background(), userID, release.ID, "one.wav", wavFixture(), nil); err != nil {
		t.Fatalf("AddAudioFile: %v", err)
	}

	resolver.Input(release.ID, 0, "Vela")
	coverArt.setResult(release.ID, &CoverArtResult{State: models.CoverValidating, Checklist: pendingChecklist()})

	if err := svc.DiscardRelease(context.Background(), userID, release.ID); err != nil {
		t.Fatalf("DiscardRelease: %v", err)
	}

	if _, err := svc.GetRelease(userID, release.ID); !errors.Is(err, ErrReleaseNotFound) {
		t.Fatalf("release still loadable after discard: %v", err)
	}
	if len(store.objects) != 0 {
		t.Fatal("stored masters survived the discard")
	}

	resolver.mu.Lock()
	sessions := len(resolver.sessions)
	resolver.mu.Unlock()
	if sessions != 0 {
		t.Fatal("resolver session survived the discard")
	}

	if got := coverArt.Checklist(release.ID); got.State != models.CoverPending {
		t.Fatalf("checklist state = %q after discard, want pending", got.State)
	}
}
