package checks

import (
	"fmt"
	"math"

	"github.com/inkfold/prepress/cmd/preflight-worker/convert"
	"github.com/inkfold/prepress/cmd/preflight-worker/format"
	"github.com/inkfold/prepress/common/models"
)

// Check names as persisted in preflight results
const (
	CheckProcessing   = "processing"
	CheckFormat       = "format"
	CheckFileSize     = "file_size"
	CheckResolution   = "resolution"
	CheckDimensions   = "dimensions"
	CheckTransparency = "transparency"
	CheckColorProfile = "color_profile"
)

const mmPerInch = 25.4

// Input carries everything the check battery grades
type Input struct {
	Format        format.Tag
	FileSize      int64
	PrintWidthMM  float64
	PrintHeightMM float64
	Conversion    convert.Outcome
	Raster        *convert.RasterInfo // nil when no surface was produced
}

// Run grades the input against a plan policy. The overall verdict is the
// worst individual verdict (error > warning > ok) and is computed together
// with the list so the two can never disagree.
func Run(in Input, pol models.PlanPolicy) models.PreflightResult {
	checks := []models.Check{
		processingCheck(in),
		formatCheck(in, pol),
		sizeCheck(in, pol),
		resolutionCheck(in, pol),
		dimensionsCheck(in),
	}
	if in.Raster != nil {
		checks = append(checks, transparencyCheck(in), colorProfileCheck(in))
	}

	return models.PreflightResult{
		Overall: models.Worst(checks),
		Checks:  checks,
	}
}

// Failure builds the terminal result for jobs that never reached the check
// battery (download corrupted mid-write, detector crash). The single
// "processing" entry keeps the persisted record self-explanatory.
func Failure(reason string) models.PreflightResult {
	checks := []models.Check{{
		Name:    CheckProcessing,
		Status:  models.PreflightError,
		Message: reason,
	}}
	return models.PreflightResult{
		Overall: models.PreflightError,
		Checks:  checks,
	}
}

func processingCheck(in Input) models.Check {
	switch in.Conversion.Status {
	case convert.StatusFailed:
		return models.Check{
			Name:    CheckProcessing,
			Status:  models.PreflightError,
			Message: "file could not be processed: " + in.Conversion.Reason,
		}
	case convert.StatusSkipped:
		return models.Check{
			Name:    CheckProcessing,
			Status:  models.PreflightOK,
			Message: in.Conversion.Reason,
		}
	default:
		return models.Check{Name: CheckProcessing, Status: models.PreflightOK}
	}
}

// formatCheck is the authoritative gate: even a file that passed upstream
// submission validation is rejected here when the plan disallows it.
func formatCheck(in Input, pol models.PlanPolicy) models.Check {
	if !pol.FormatAllowed(string(in.Format)) {
		return models.Check{
			Name:    CheckFormat,
			Status:  models.PreflightError,
			Message: fmt.Sprintf("format %q is not allowed on this plan", in.Format),
			Value:   string(in.Format),
		}
	}
	return models.Check{Name: CheckFormat, Status: models.PreflightOK, Value: string(in.Format)}
}

func sizeCheck(in Input, pol models.PlanPolicy) models.Check {
	value := fmt.Sprintf("%d", in.FileSize)
	switch {
	case in.FileSize > pol.MaxFileSize:
		return models.Check{
			Name:    CheckFileSize,
			Status:  models.PreflightError,
			Message: fmt.Sprintf("file is %s, plan maximum is %s", megabytes(in.FileSize), megabytes(pol.MaxFileSize)),
			Value:   value,
		}
	case float64(in.FileSize) >= pol.WarnBandRatio*float64(pol.MaxFileSize):
		return models.Check{
			Name:    CheckFileSize,
			Status:  models.PreflightWarning,
			Message: fmt.Sprintf("file is %s, close to the plan maximum of %s", megabytes(in.FileSize), megabytes(pol.MaxFileSize)),
			Value:   value,
		}
	default:
		return models.Check{Name: CheckFileSize, Status: models.PreflightOK, Value: value}
	}
}

// resolutionCheck computes effective DPI from the surface dimensions and
// the declared physical print size. The tighter axis governs.
func resolutionCheck(in Input, pol models.PlanPolicy) models.Check {
	if in.Raster == nil {
		return models.Check{
			Name:    CheckResolution,
			Status:  models.PreflightOK,
			Message: "resolution not computed (no raster surface)",
		}
	}
	if in.PrintWidthMM <= 0 || in.PrintHeightMM <= 0 {
		return models.Check{
			Name:    CheckResolution,
			Status:  models.PreflightOK,
			Message: "no target print size declared",
		}
	}

	dpiX := float64(in.Raster.Width) / (in.PrintWidthMM / mmPerInch)
	dpiY := float64(in.Raster.Height) / (in.PrintHeightMM / mmPerInch)
	dpi := math.Min(dpiX, dpiY)
	value := fmt.Sprintf("%.0f", dpi)

	switch {
	case dpi < pol.MinDPI*pol.HardFloorRatio:
		return models.Check{
			Name:    CheckResolution,
			Status:  models.PreflightError,
			Message: fmt.Sprintf("effective resolution %.0f dpi is far below the %0.f dpi minimum", dpi, pol.MinDPI),
			Value:   value,
		}
	case dpi < pol.MinDPI:
		return models.Check{
			Name:    CheckResolution,
			Status:  models.PreflightWarning,
			Message: fmt.Sprintf("effective resolution %.0f dpi is below the %.0f dpi minimum", dpi, pol.MinDPI),
			Value:   value,
		}
	default:
		return models.Check{Name: CheckResolution, Status: models.PreflightOK, Value: value}
	}
}

// dimensionsCheck compares the artwork's aspect ratio against the target
// print area. A mild mismatch is reviewable; an extreme one means the
// artwork cannot cover the design area at any legal scale.
func dimensionsCheck(in Input) models.Check {
	if in.Raster == nil || in.PrintWidthMM <= 0 || in.PrintHeightMM <= 0 {
		return models.Check{Name: CheckDimensions, Status: models.PreflightOK}
	}

	artRatio := float64(in.Raster.Width) / float64(in.Raster.Height)
	printRatio := in.PrintWidthMM / in.PrintHeightMM
	diff := math.Abs(artRatio-printRatio) / printRatio
	value := fmt.Sprintf("%dx%d", in.Raster.Width, in.Raster.Height)

	switch {
	case diff > 0.5:
		return models.Check{
			Name:    CheckDimensions,
			Status:  models.PreflightError,
			Message: fmt.Sprintf("aspect ratio %.2f cannot cover the %.2f print area at any scale", artRatio, printRatio),
			Value:   value,
		}
	case diff > 0.05:
		return models.Check{
			Name:    CheckDimensions,
			Status:  models.PreflightWarning,
			Message: fmt.Sprintf("aspect ratio %.2f differs from the %.2f print area", artRatio, printRatio),
			Value:   value,
		}
	default:
		return models.Check{Name: CheckDimensions, Status: models.PreflightOK, Value: value}
	}
}

// transparencyCheck is informational: alpha affects substrate choice, not
// printability, so it never blocks.
func transparencyCheck(in Input) models.Check {
	if in.Raster.HasAlpha {
		return models.Check{
			Name:    CheckTransparency,
			Status:  models.PreflightOK,
			Message: "artwork contains transparency; output depends on print substrate",
			Value:   "true",
		}
	}
	return models.Check{Name: CheckTransparency, Status: models.PreflightOK, Value: "false"}
}

// colorProfileCheck warns on non-standard color, never errors: color is
// always convertible for print.
func colorProfileCheck(in Input) models.Check {
	switch in.Raster.ColorMode {
	case "rgb", "cmyk", "gray":
		return models.Check{Name: CheckColorProfile, Status: models.PreflightOK, Value: in.Raster.ColorMode}
	default:
		return models.Check{
			Name:    CheckColorProfile,
			Status:  models.PreflightWarning,
			Message: "non-standard color profile, will be converted for print",
			Value:   in.Raster.ColorMode,
		}
	}
}

func megabytes(n int64) string {
	return fmt.Sprintf("%.1fMB", float64(n)/(1<<20))
}
