package models

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Composition command errors. Handlers map these to conflict/not-found
// responses; the aggregate is left untouched whenever one is returned.
var (
	ErrAudioAlreadyLinked = errors.New("audio file is already linked to another track")
	ErrTrackNotFound      = errors.New("track not found")
	ErrAudioFileNotFound  = errors.New("audio file not found")
	ErrSingleTrackOnly    = errors.New("format permits only a single track")
)

// AddAudioFile registers an accepted audio file on the release. Header and
// container validation happens before this is called.
//
// Single format: the release has exactly one implicit track; the new file
// replaces the sole audio reference. Multi-track formats: the file is
// appended and a paired track is auto-created, titled from the file name.
// Returns the track now referencing the file.
func (r *Release) AddAudioFile(af AudioFile) (*Track, error) {
	if af.ID == uuid.Nil {
		af.ID = uuid.New()
	}
	af.ReleaseID = r.ID

	if !r.Format.MultiTrack() {
		track := r.ensureImplicitTrack()
		// Replace wholesale: the old blob (if any) is dropped with its link.
		audioFiles := []AudioFile{af}
		tracks := cloneTracks(r.Tracks)
		id := af.ID
		tracks[indexOfTrack(tracks, track.ID)].AudioFileID = &id

		if err := validateExclusivity(tracks, audioFiles); err != nil {
			return nil, err
		}
		r.Tracks = tracks
		r.AudioFiles = audioFiles
		return &r.Tracks[indexOfTrack(r.Tracks, track.ID)], nil
	}

	id := af.ID
	track := Track{
		ID:          uuid.New(),
		ReleaseID:   r.ID,
		Position:    len(r.Tracks),
		Title:       titleFromFileName(af.FileName),
		AudioFileID: &id,
		ArtistName:  r.PrimaryArtist,
		Language:    r.Language,
		Genre:       r.Genre,
		SubGenre:    r.SubGenre,
		Profiles:    EmptyProfileSet(),
	}

	tracks := append(cloneTracks(r.Tracks), track)
	audioFiles := append(cloneAudioFiles(r.AudioFiles), af)

	if err := validateExclusivity(tracks, audioFiles); err != nil {
		return nil, err
	}
	r.Tracks = tracks
	r.AudioFiles = audioFiles
	return &r.Tracks[len(r.Tracks)-1], nil
}

// AddTrack appends an empty track slot. Only valid for multi-track formats.
func (r *Release) AddTrack(title string) (*Track, error) {
	if !r.Format.MultiTrack() {
		return nil, ErrSingleTrackOnly
	}
	track := Track{
		ID:         uuid.New(),
		ReleaseID:  r.ID,
		Position:   len(r.Tracks),
		Title:      title,
		ArtistName: r.PrimaryArtist,
		Language:   r.Language,
		Genre:      r.Genre,
		SubGenre:   r.SubGenre,
		Profiles:   EmptyProfileSet(),
	}
	r.Tracks = append(r.Tracks, track)
	return &r.Tracks[len(r.Tracks)-1], nil
}

// LinkTrackToAudio reassigns a track's audio reference. audioFileID ==
// uuid.Nil unlinks without deleting the audio file. Linking a file that
// another track already holds is rejected and the aggregate is unchanged.
func (r *Release) LinkTrackToAudio(trackID, audioFileID uuid.UUID) error {
	ti := indexOfTrack(r.Tracks, trackID)
	if ti < 0 {
		return ErrTrackNotFound
	}

	tracks := cloneTracks(r.Tracks)
	if audioFileID == uuid.Nil {
		tracks[ti].AudioFileID = nil
	} else {
		if indexOfAudioFile(r.AudioFiles, audioFileID) < 0 {
			return ErrAudioFileNotFound
		}
		id := audioFileID
		tracks[ti].AudioFileID = &id
	}

	if err := validateExclusivity(tracks, r.AudioFiles); err != nil {
		return err
	}
	r.Tracks = tracks
	return nil
}

// RemoveTrack removes the track and any audio file it exclusively
// referenced.
func (r *Release) RemoveTrack(trackID uuid.UUID) error {
	ti := indexOfTrack(r.Tracks, trackID)
	if ti < 0 {
		return ErrTrackNotFound
	}

	removed := r.Tracks[ti]
	tracks := make([]Track, 0, len(r.Tracks)-1)
	for i, t := range r.Tracks {
		if i == ti {
			continue
		}
		t.Position = len(tracks)
		tracks = append(tracks, t)
	}

	audioFiles := r.AudioFiles
	if removed.AudioFileID != nil {
		// The link was exclusive, so no surviving track references it.
		audioFiles = make([]AudioFile, 0, len(r.AudioFiles))
		for _, af := range r.AudioFiles {
			if af.ID == *removed.AudioFileID {
				continue
			}
			audioFiles = append(audioFiles, af)
		}
	}

	if err := validateExclusivity(tracks, audioFiles); err != nil {
		return err
	}
	r.Tracks = tracks
	r.AudioFiles = audioFiles
	return nil
}

// RemoveAudioFile removes the blob; any track referencing it becomes
// unlinked, not deleted.
func (r *Release) RemoveAudioFile(audioFileID uuid.UUID) error {
	ai := indexOfAudioFile(r.AudioFiles, audioFileID)
	if ai < 0 {
		return ErrAudioFileNotFound
	}

	audioFiles := make([]AudioFile, 0, len(r.AudioFiles)-1)
	for i, af := range r.AudioFiles {
		if i == ai {
			continue
		}
		audioFiles = append(audioFiles, af)
	}

	tracks := cloneTracks(r.Tracks)
	for i := range tracks {
		if tracks[i].AudioFileID != nil && *tracks[i].AudioFileID == audioFileID {
			tracks[i].AudioFileID = nil
		}
	}

	if err := validateExclusivity(tracks, audioFiles); err != nil {
		return err
	}
	r.Tracks = tracks
	r.AudioFiles = audioFiles
	return nil
}

// UnassignedAudioFiles returns the audio files not linked to any track other
// than excludingTrackID. This is the candidate set for a track's audio
// selector, so exclusivity holds by construction: a file taken by another
// track is never offered.
func (r *Release) UnassignedAudioFiles(excludingTrackID uuid.UUID) []AudioFile {
	taken := make(map[uuid.UUID]bool)
	for _, t := range r.Tracks {
		if t.ID == excludingTrackID {
			continue
		}
		if t.AudioFileID != nil {
			taken[*t.AudioFileID] = true
		}
	}

	var free []AudioFile
	for _, af := range r.AudioFiles {
		if !taken[af.ID] {
			free = append(free, af)
		}
	}
	return free
}

// FindTrack returns the track with the given ID, or nil.
func (r *Release) FindTrack(trackID uuid.UUID) *Track {
	if i := indexOfTrack(r.Tracks, trackID); i >= 0 {
		return &r.Tracks[i]
	}
	return nil
}

// FindAudioFile returns the audio file with the given ID, or nil.
func (r *Release) FindAudioFile(audioFileID uuid.UUID) *AudioFile {
	if i := indexOfAudioFile(r.AudioFiles, audioFileID); i >= 0 {
		return &r.AudioFiles[i]
	}
	return nil
}

// validateExclusivity checks the complete post-mutation state: every linked
// audio file exists and no audio file is referenced by two tracks.
func validateExclusivity(tracks []Track, audioFiles []AudioFile) error {
	known := make(map[uuid.UUID]bool, len(audioFiles))
	for _, af := range audioFiles {
		known[af.ID] = true
	}

	seen := make(map[uuid.UUID]uuid.UUID)
	for _, t := range tracks {
		if t.AudioFileID == nil {
			continue
		}
		id := *t.AudioFileID
		if !known[id] {
			return fmt.Errorf("%w: %s", ErrAudioFileNotFound, id)
		}
		if other, dup := seen[id]; dup && other != t.ID {
			return ErrAudioAlreadyLinked
		}
		seen[id] = t.ID
	}
	return nil
}

// ensureImplicitTrack guarantees the single-format release carries its one
// implicit track.
func (r *Release) ensureImplicitTrack() *Track {
	if len(r.Tracks) > 0 {
		return &r.Tracks[0]
	}
	r.Tracks = []Track{{
		ID:         uuid.New(),
		ReleaseID:  r.ID,
		Position:   0,
		Title:      r.Title,
		ArtistName: r.PrimaryArtist,
		Language:   r.Language,
		Genre:      r.Genre,
		SubGenre:   r.SubGenre,
		Profiles:   EmptyProfileSet(),
	}}
	return &r.Tracks[0]
}

func titleFromFileName(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.ReplaceAll(base, "_", " ")
	return strings.TrimSpace(base)
}

func indexOfTrack(tracks []Track, id uuid.UUID) int {
	for i := range tracks {
		if tracks[i].ID == id {
			return i
		}
	}
	return -1
}

func indexOfAudioFile(audioFiles []AudioFile, id uuid.UUID) int {
	for i := range audioFiles {
		if audioFiles[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneTracks(tracks []Track) []Track {
	out := make([]Track, len(tracks))
	copy(out, tracks)
	return out
}

func cloneAudioFiles(audioFiles []AudioFile) []AudioFile {
	out := make([]AudioFile, len(audioFiles))
	copy(out, audioFiles)
	return out
}
