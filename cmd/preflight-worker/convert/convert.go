package convert

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	// register decoders for image.Decode
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/tiff"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/inkfold/prepress/cmd/preflight-worker/format"
)

// Status is the typed result kind of a conversion attempt. Failures are a
// value, not an exception: the check engine consumes them and emits the
// "processing" check deterministically.
type Status int

const (
	// StatusRendered means a raster surface was produced
	StatusRendered Status = iota
	// StatusSkipped means the format has no raster rendering here (SVG,
	// unknown); not an error
	StatusSkipped
	// StatusFailed means the bytes could not be rendered (corrupt file,
	// unsupported variant, missing renderer)
	StatusFailed
)

// Outcome is the result of rendering artwork into an analysis surface.
// The surface is used only for checks and thumbnailing; the original file
// is never mutated, replaced or uploaded in converted form.
type Outcome struct {
	Status Status
	Image  image.Image
	Reason string
}

// Rendered wraps a produced surface
func Rendered(img image.Image) Outcome {
	return Outcome{Status: StatusRendered, Image: img}
}

// Skipped marks a format without raster rendering
func Skipped(reason string) Outcome {
	return Outcome{Status: StatusSkipped, Reason: reason}
}

// Failed marks a content-level rendering failure
func Failed(reason string) Outcome {
	return Outcome{Status: StatusFailed, Reason: reason}
}

// Renderer flattens complex formats into a raster at a fixed analysis
// resolution. PDF and PostScript go through ghostscript, PSD through
// imagemagick; raster formats and TIFF decode natively.
type Renderer struct {
	GhostscriptBin string
	MagickBin      string
	DPI            int
}

// Render produces the analysis surface for a local file. Multi-page and
// multi-artboard inputs render only their first page.
func (r *Renderer) Render(ctx context.Context, path string, tag format.Tag) Outcome {
	switch tag {
	case format.Raster:
		return decodeFile(path)
	case format.TIFF:
		return decodeTIFF(path)
	case format.PDF, format.PostScript:
		return r.renderGhostscript(ctx, path)
	case format.PSD:
		return r.renderMagick(ctx, path)
	case format.SVG:
		return Skipped("vector artwork is analyzed without rasterization")
	default:
		return Skipped("unrecognized format, byte-level checks only")
	}
}

func decodeFile(path string) Outcome {
	f, err := os.Open(path)
	if err != nil {
		return Failed(fmt.Sprintf("open: %v", err))
	}
	defer func() {
		_ = f.Close()
	}()

	img, _, err := image.Decode(f)
	if err != nil {
		return Failed(fmt.Sprintf("decode raster: %v", err))
	}
	return Rendered(img)
}

func decodeTIFF(path string) Outcome {
	f, err := os.Open(path)
	if err != nil {
		return Failed(fmt.Sprintf("open: %v", err))
	}
	defer func() {
		_ = f.Close()
	}()

	img, err := tiff.Decode(f)
	if err != nil {
		return Failed(fmt.Sprintf("decode tiff: %v", err))
	}
	return Rendered(img)
}

// renderGhostscript rasterizes the first page of a PDF/PostScript file
func (r *Renderer) renderGhostscript(ctx context.Context, path string) Outcome {
	out := filepath.Join(filepath.Dir(path), "gs_render.png")

	cmd := exec.CommandContext(ctx, r.GhostscriptBin,
		"-dSAFER", "-dBATCH", "-dNOPAUSE", "-dNOPROMPT",
		"-sDEVICE=png16m",
		fmt.Sprintf("-r%d", r.DPI),
		"-dFirstPage=1", "-dLastPage=1",
		"-o", out,
		path,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return Failed(fmt.Sprintf("ghostscript: %v: %s", err, firstLine(output)))
	}
	defer func() {
		_ = os.Remove(out)
	}()
	return decodeFile(out)
}

// renderMagick flattens the first artboard of a layered PSD
func (r *Renderer) renderMagick(ctx context.Context, path string) Outcome {
	out := filepath.Join(filepath.Dir(path), "im_render.png")

	cmd := exec.CommandContext(ctx, r.MagickBin,
		path+"[0]",
		"-flatten",
		"-density", fmt.Sprintf("%d", r.DPI),
		"png:"+out,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return Failed(fmt.Sprintf("imagemagick: %v: %s", err, firstLine(output)))
	}
	defer func() {
		_ = os.Remove(out)
	}()
	return decodeFile(out)
}

func firstLine(output []byte) string {
	s := strings.TrimSpace(string(output))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
