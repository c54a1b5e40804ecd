package resolution

import (
	"fmt"
	"strconv"
	"strings"
)

// Resolution is a frame size in pixels. The zero value means "keep the source size".
type Resolution struct {
	Width  int
	Height int
}

var presets = map[string]Resolution{
	"360p":  {Width: 640, Height: 360},
	"480p":  {Width: 854, Height: 480},
	"720p":  {Width: 1280, Height: 720},
	"1080p": {Width: 1920, Height: 1080},
	"1440p": {Width: 2560, Height: 1440},
	"2160p": {Width: 3840, Height: 2160},
}

// String returns e.g. "1920x1080".
func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// IsEmpty checks if the resolution is empty (both width and height are zero).
func (r Resolution) IsEmpty() bool {
	return r.Width == 0 && r.Height == 0
}

// Caps renders the resolution as GStreamer raw video caps fields.
func (r Resolution) Caps() string {
	if r.IsEmpty() {
		return ""
	}
	return fmt.Sprintf("width=%d,height=%d", r.Width, r.Height)
}

// Parse converts a string representation of a resolution into a Resolution.
// Supported formats: "1920x1080", "1920:1080" and presets such as "720p".
// H.264 encoders require even dimensions, so odd values are rejected.
func Parse(s string) (Resolution, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	var res Resolution
	var err error
	switch {
	case strings.Contains(s, "x"):
		res, err = parseDimensions(s, "x")
	case strings.Contains(s, ":"):
		res, err = parseDimensions(s, ":")
	case strings.HasSuffix(s, "p"):
		preset, ok := presets[s]
		if !ok {
			return Resolution{}, fmt.Errorf("unsupported resolution preset: %s", s)
		}
		res = preset
	default:
		err = fmt.Errorf("invalid resolution format: %s", s)
	}
	if err != nil {
		return Resolution{}, err
	}

	if res.Width <= 0 || res.Height <= 0 {
		return Resolution{}, fmt.Errorf("resolution must be positive: %s", s)
	}
	if res.Width%2 != 0 || res.Height%2 != 0 {
		return Resolution{}, fmt.Errorf("resolution must have even dimensions: %s", s)
	}
	return res, nil
}

func parseDimensions(s, sep string) (Resolution, error) {
	parts := strings.Split(s, sep)
	if len(parts) != 2 {
		return Resolution{}, fmt.Errorf("invalid dimensions: %s", s)
	}

	width, err := strconv.Atoi(parts[0])
	if err != nil {
		return Resolution{}, fmt.Errorf("invalid width: %s", parts[0])
	}

	height, err := strconv.Atoi(parts[1])
	if err != nil {
		return Resolution{}, fmt.Errorf("invalid height: %s", parts[1])
	}

	return Resolution{Width: width, Height: height}, nil
}
