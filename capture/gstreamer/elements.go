package gstreamer

import (
	"errors"
	"fmt"
	"maps"

	"github.com/yeti47/screenrec/ccc/logging"
)

// ErrCGORequired is returned when the binary was built without GStreamer support.
var ErrCGORequired = errors.New("GStreamer support requires CGO")

// EncoderFallbackMap defines fallback chains for H.264 encoder elements
var EncoderFallbackMap = map[string][]string{
	"x264enc":      {"x264enc", "openh264enc", "vaapih264enc", "nvh264enc", "v4l2h264enc"},
	"openh264enc":  {"openh264enc", "x264enc", "vaapih264enc", "nvh264enc", "v4l2h264enc"},
	"vaapih264enc": {"vaapih264enc", "x264enc", "openh264enc", "nvh264enc", "v4l2h264enc"},
	"nvh264enc":    {"nvh264enc", "x264enc", "openh264enc", "vaapih264enc", "v4l2h264enc"},
	"v4l2h264enc":  {"v4l2h264enc", "x264enc", "openh264enc", "vaapih264enc", "nvh264enc"},
}

// AudioEncoderChain lists AAC encoder elements in preference order
var AudioEncoderChain = []string{"fdkaacenc", "avenc_aac", "voaacenc"}

// ElementProvider reports which GStreamer element factories are installed
type ElementProvider interface {
	IsElementAvailable(name string) bool
}

// StaticElementProvider is an ElementProvider over a fixed set of elements
type StaticElementProvider map[string]bool

func (p StaticElementProvider) IsElementAvailable(name string) bool {
	return p[name]
}

// CachedElementProvider memoizes lookups of another provider
type CachedElementProvider struct {
	lookup func(name string) bool
	cache  map[string]bool
}

// NewCachedElementProvider wraps lookup with a cache
func NewCachedElementProvider(lookup func(name string) bool) *CachedElementProvider {
	return &CachedElementProvider{lookup: lookup, cache: make(map[string]bool)}
}

func (p *CachedElementProvider) IsElementAvailable(name string) bool {
	if available, ok := p.cache[name]; ok {
		return available
	}
	available := p.lookup(name)
	p.cache[name] = available
	return available
}

// Known returns a copy of every lookup made so far
func (p *CachedElementProvider) Known() map[string]bool {
	result := make(map[string]bool, len(p.cache))
	maps.Copy(result, p.cache)
	return result
}

// SelectVideoEncoder returns requested if installed, otherwise the first installed element of its fallback chain.
func SelectVideoEncoder(provider ElementProvider, requested string, logger logging.Logger) (string, error) {
	if logger == nil {
		logger = logging.NopLogger
	}
	if provider.IsElementAvailable(requested) {
		return requested, nil
	}

	chain, exists := EncoderFallbackMap[requested]
	if !exists {
		return "", fmt.Errorf("encoder '%s' is not available and no fallback is defined", requested)
	}

	logger.Warn("Encoder not available, trying fallbacks", "encoder", requested, "fallbacks", chain)
	for _, name := range chain {
		if provider.IsElementAvailable(name) {
			logger.Info("Using fallback encoder", "encoder", name)
			return name, nil
		}
	}

	return "", fmt.Errorf("no suitable encoder available from fallback chain: %v", chain)
}

// SelectAudioEncoder returns the first installed AAC encoder
func SelectAudioEncoder(provider ElementProvider) (string, error) {
	for _, name := range AudioEncoderChain {
		if provider.IsElementAvailable(name) {
			return name, nil
		}
	}
	return "", fmt.Errorf("no AAC encoder available from: %v", AudioEncoderChain)
}

// RequiredElements are the elements every recording pipeline uses regardless of encoder choice.
var RequiredElements = []string{
	"pipewiresrc", "videoconvert", "videoscale", "videorate", "h264parse", "queue", "mp4mux", "filesink",
}

// AudioElements are additionally needed when recording audio.
var AudioElements = []string{"pulsesrc", "audioconvert", "audioresample", "aacparse"}

// MissingElements returns the names in names that provider does not have.
func MissingElements(provider ElementProvider, names ...string) []string {
	var missing []string
	for _, name := range names {
		if !provider.IsElementAvailable(name) {
			missing = append(missing, name)
		}
	}
	return missing
}
