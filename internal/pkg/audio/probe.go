// Package audio inspects audio binaries at the header level so uploads can
// be gated on the broadcast-quality profile before any byte reaches storage.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Broadcast-quality profile every accepted master must match.
const (
	RequiredSampleRate = 44100
	RequiredBitDepth   = 16
)

var (
	ErrUnsupportedContainer = errors.New("unsupported audio container: lossless wav or flac required")
	ErrCorruptHeader        = errors.New("audio header could not be parsed")
)

// Info is the result of a header probe.
type Info struct {
	Container  string // "wav" | "flac"
	SampleRate int
	BitDepth   int
	Channels   int
}

// Probe parses the container header of data and returns its format info.
// The file name extension is only used to pick an error message; detection
// itself is by magic bytes, never by extension.
func Probe(data []byte) (*Info, error) {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return probeWAV(data)
	case len(data) >= 4 && string(data[0:4]) == "fLaC":
		return probeFLAC(data)
	default:
		return nil, ErrUnsupportedContainer
	}
}

// ValidateMaster probes data and checks it against the broadcast profile.
// The returned Info is valid even when an error is returned for a profile
// mismatch, so callers can report the observed values.
func ValidateMaster(fileName string, data []byte) (*Info, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	info, err := Probe(data)
	if err != nil {
		if errors.Is(err, ErrUnsupportedContainer) {
			return nil, fmt.Errorf("%w (got %s)", ErrUnsupportedContainer, extOrUnknown(ext))
		}
		return nil, err
	}

	if info.SampleRate != RequiredSampleRate {
		return info, fmt.Errorf("sample rate must be %d Hz, got %d Hz", RequiredSampleRate, info.SampleRate)
	}
	if info.BitDepth != RequiredBitDepth {
		return info, fmt.Errorf("bit depth must be %d-bit, got %d-bit", RequiredBitDepth, info.BitDepth)
	}
	return info, nil
}

// probeWAV walks RIFF chunks until the fmt chunk and reads the PCM format
// fields. Layout: wFormatTag(2) nChannels(2) nSamplesPerSec(4)
// nAvgBytesPerSec(4) nBlockAlign(2) wBitsPerSample(2), all little-endian.
func probeWAV(data []byte) (*Info, error) {
	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8

		if chunkID == "fmt " {
			if chunkSize < 16 || body+16 > len(data) {
				return nil, ErrCorruptHeader
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			// 1 = PCM, 0xFFFE = WAVE_FORMAT_EXTENSIBLE (still PCM payload)
			if format != 1 && format != 0xFFFE {
				return nil, fmt.Errorf("%w: wav stream is not linear pcm", ErrUnsupportedContainer)
			}
			return &Info{
				Container:  "wav",
				Channels:   int(binary.LittleEndian.Uint16(data[body+2 : body+4])),
				SampleRate: int(binary.LittleEndian.Uint32(data[body+4 : body+8])),
				BitDepth:   int(binary.LittleEndian.Uint16(data[body+14 : body+16])),
			}, nil
		}

		// Chunks are word-aligned
		if chunkSize%2 == 1 {
			chunkSize++
		}
		offset = body + chunkSize
	}
	return nil, ErrCorruptHeader
}

// probeFLAC reads the mandatory STREAMINFO metadata block that directly
// follows the fLaC marker. Sample rate is 20 bits, bits-per-sample 5 bits
// (stored minus one), packed big-endian starting at STREAMINFO byte 10.
func probeFLAC(data []byte) (*Info, error) {
	// 4 marker + 4 block header + 34 STREAMINFO
	if len(data) < 42 {
		return nil, ErrCorruptHeader
	}
	blockType := data[4] & 0x7F
	if blockType != 0 {
		return nil, ErrCorruptHeader
	}
	info := data[8:42]

	sampleRate := int(info[10])<<12 | int(info[11])<<4 | int(info[12])>>4
	channels := int(info[12]>>1)&0x07 + 1
	bitDepth := (int(info[12]&0x01)<<4 | int(info[13])>>4) + 1

	if sampleRate == 0 {
		return nil, ErrCorruptHeader
	}
	return &Info{
		Container:  "flac",
		SampleRate: sampleRate,
		Channels:   channels,
		BitDepth:   bitDepth,
	}, nil
}

func extOrUnknown(ext string) string {
	if ext == "" {
		return "unknown format"
	}
	return ext
}
