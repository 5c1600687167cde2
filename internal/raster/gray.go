package raster

import (
	"image"
	"image/color"
)

// IsGray reports whether cfg describes a single-channel gray image.
func IsGray(cfg image.Config) bool {
	return cfg.ColorModel == color.GrayModel || cfg.ColorModel == color.Gray16Model
}
