package rimage

import (
	"image/color"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ParseHexColor parses colors written as "#rrggbb" or "rrggbb".
func ParseHexColor(hex string) (color.RGBA, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(trimmed) != 6 {
		return color.RGBA{}, errors.Errorf("color %q must have 6 hex digits", hex)
	}
	v, err := strconv.ParseUint(trimmed, 16, 32)
	if err != nil {
		return color.RGBA{}, errors.Wrapf(err, "invalid color %q", hex)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
