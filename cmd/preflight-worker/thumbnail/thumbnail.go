package thumbnail

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Suffix is appended to the original key's base name when deriving the
// thumbnail key, preserving any provider prefix.
const Suffix = "_thumb.jpg"

// ContentType of encoded thumbnails
const ContentType = "image/jpeg"

// Encode produces a bounded preview from the analysis surface. The long
// edge is limited to maxEdge; smaller artwork is not upscaled.
func Encode(src image.Image, maxEdge, quality int) ([]byte, error) {
	fitted := imaging.Fit(src, maxEdge, maxEdge, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, fitted, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
