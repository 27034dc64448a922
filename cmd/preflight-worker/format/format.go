package format

import (
	"github.com/gabriel-vasile/mimetype"
)

// Tag classifies the artwork's true binary format. The set is closed;
// anything unrecognized is Unknown and still flows through the check
// engine on byte-level heuristics.
type Tag string

const (
	Raster     Tag = "raster" // png, jpeg, gif, webp, bmp
	PDF        Tag = "pdf"
	PostScript Tag = "postscript" // ps, eps, ai
	TIFF       Tag = "tiff"
	PSD        Tag = "psd"
	SVG        Tag = "svg"
	Unknown    Tag = "unknown"
)

// Detect classifies a downloaded file by its magic bytes. The declared
// content-type is client-controlled and wrong in practice (generic
// octet-stream uploads are common), so it is never consulted.
func Detect(path string) (Tag, string, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return Unknown, "", err
	}
	return fromMIME(mt), mt.String(), nil
}

// DetectBytes classifies in-memory content
func DetectBytes(data []byte) (Tag, string) {
	mt := mimetype.Detect(data)
	return fromMIME(mt), mt.String()
}

func fromMIME(mt *mimetype.MIME) Tag {
	switch {
	case mt.Is("application/pdf"):
		// .ai files saved with PDF compatibility land here too
		return PDF
	case mt.Is("application/postscript"):
		return PostScript
	case mt.Is("image/vnd.adobe.photoshop"):
		return PSD
	case mt.Is("image/tiff"):
		return TIFF
	case mt.Is("image/svg+xml"):
		return SVG
	case mt.Is("image/png"), mt.Is("image/jpeg"), mt.Is("image/gif"),
		mt.Is("image/webp"), mt.Is("image/bmp"):
		return Raster
	default:
		return Unknown
	}
}
