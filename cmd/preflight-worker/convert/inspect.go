package convert

import (
	"image"
	"image/color"
)

// RasterInfo summarizes the analysis surface for the check engine
type RasterInfo struct {
	Width     int
	Height    int
	HasAlpha  bool
	ColorMode string // "rgb", "cmyk", "gray", "indexed" or "unknown"
}

// Inspect extracts dimensions, color mode and transparency from a surface.
// Alpha detection samples a bounded grid so huge surfaces stay cheap.
func Inspect(img image.Image) RasterInfo {
	b := img.Bounds()
	info := RasterInfo{
		Width:     b.Dx(),
		Height:    b.Dy(),
		ColorMode: colorMode(img),
	}

	if opaque, ok := img.(interface{ Opaque() bool }); ok {
		info.HasAlpha = !opaque.Opaque()
		return info
	}

	step := 1
	if larger := max(b.Dx(), b.Dy()); larger > 256 {
		step = larger / 256
	}
	for y := b.Min.Y; y < b.Max.Y; y += step {
		for x := b.Min.X; x < b.Max.X; x += step {
			if _, _, _, a := img.At(x, y).RGBA(); a < 0xffff {
				info.HasAlpha = true
				return info
			}
		}
	}
	return info
}

func colorMode(img image.Image) string {
	switch img.(type) {
	case *image.CMYK:
		return "cmyk"
	case *image.Gray, *image.Gray16:
		return "gray"
	case *image.Paletted:
		return "indexed"
	case *image.RGBA, *image.RGBA64, *image.NRGBA, *image.NRGBA64, *image.YCbCr, *image.NYCbCrA:
		return "rgb"
	}

	switch img.ColorModel() {
	case color.CMYKModel:
		return "cmyk"
	case color.GrayModel, color.Gray16Model:
		return "gray"
	case color.RGBAModel, color.NRGBAModel, color.RGBA64Model, color.NRGBA64Model:
		return "rgb"
	}
	return "unknown"
}
