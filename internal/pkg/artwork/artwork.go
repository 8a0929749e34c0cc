// Package artwork performs the local, advisory inspection of cover images.
// The authoritative compliance verdict always comes from the remote
// collaborator; this only provides fast feedback before that round trip.
package artwork

import (
	"bytes"
	"fmt"
	"image"
	"net/http"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// Dimensions holds decoded pixel dimensions of an image.
type Dimensions struct {
	Width  int
	Height int
}

// SniffImage verifies by content that data is an image and returns its MIME
// type.
func SniffImage(data []byte) (string, error) {
	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return "", fmt.Errorf("invalid content type: expected image, got %s", mimeType)
	}
	return mimeType, nil
}

// DecodeDimensions decodes only the image header for its pixel dimensions.
func DecodeDimensions(data []byte) (*Dimensions, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image header: %w", err)
	}
	return &Dimensions{Width: cfg.Width, Height: cfg.Height}, nil
}

// AdvisoryCheck reports non-blocking findings about the image: minimum
// dimensions and squareness. Findings never gate the remote check.
func AdvisoryCheck(data []byte, minPixels int) []string {
	var findings []string
	dims, err := DecodeDimensions(data)
	if err != nil {
		// Not decodable locally; leave it to the remote collaborator.
		return findings
	}
	if dims.Width < minPixels || dims.Height < minPixels {
		findings = append(findings, fmt.Sprintf("image is %dx%d, below the recommended %dx%d", dims.Width, dims.Height, minPixels, minPixels))
	}
	if dims.Width != dims.Height {
		findings = append(findings, fmt.Sprintf("image is %dx%d, not square", dims.Width, dims.Height))
	}
	return findings
}
