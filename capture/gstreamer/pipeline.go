package gstreamer

import (
	"fmt"
	"strings"

	"github.com/yeti47/screenrec/capture"
)

const (
	muxerName       = "mux"
	keyframeSeconds = 2
)

// PipelineConfig describes one recording pipeline.
type PipelineConfig struct {
	PipeWireFD   int // -1 to use the default PipeWire connection
	NodeID       uint32
	OutputFile   string
	VideoEncoder string
	AudioEncoder string // empty records no audio
	Settings     capture.Settings
}

// BuildPipeline renders cfg as a gst-launch style description.
func BuildPipeline(cfg PipelineConfig) (string, error) {
	if cfg.OutputFile == "" {
		return "", fmt.Errorf("pipeline needs an output file")
	}
	if cfg.VideoEncoder == "" {
		return "", fmt.Errorf("pipeline needs a video encoder")
	}

	frameRate := cfg.Settings.FrameRate
	if frameRate <= 0 {
		frameRate = 30
	}

	var b strings.Builder

	b.WriteString("pipewiresrc")
	if cfg.PipeWireFD >= 0 {
		fmt.Fprintf(&b, " fd=%d", cfg.PipeWireFD)
	}
	fmt.Fprintf(&b, " path=%d do-timestamp=true keepalive-time=1000", cfg.NodeID)
	b.WriteString(" ! videoconvert ! videoscale ! videorate")

	caps := []string{"video/x-raw", "format=I420"}
	if c := cfg.Settings.Resolution.Caps(); c != "" {
		caps = append(caps, c)
	}
	caps = append(caps, fmt.Sprintf("framerate=%d/1", frameRate))
	b.WriteString(" ! " + strings.Join(caps, ","))

	b.WriteString(" ! " + videoEncoderElement(cfg.VideoEncoder, cfg.Settings.VideoBitRateKbps, frameRate*keyframeSeconds))
	b.WriteString(" ! h264parse ! queue ! " + muxerName + ".")

	if cfg.AudioEncoder != "" {
		b.WriteString(" pulsesrc do-timestamp=true ! audioconvert ! audioresample")
		b.WriteString(" ! " + audioEncoderElement(cfg.AudioEncoder, cfg.Settings.AudioBitRateKbps))
		b.WriteString(" ! aacparse ! queue ! " + muxerName + ".")
	}

	fmt.Fprintf(&b, " mp4mux name=%s faststart=true ! filesink location=%s", muxerName, quote(cfg.OutputFile))
	return b.String(), nil
}

// videoEncoderElement sets bitrate and keyframe interval using each element's own property names and units.
func videoEncoderElement(name string, kbps, keyInt int) string {
	props := []string{name}
	switch name {
	case "x264enc":
		props = append(props, "tune=zerolatency", "speed-preset=veryfast", fmt.Sprintf("key-int-max=%d", keyInt))
		if kbps > 0 {
			props = append(props, fmt.Sprintf("bitrate=%d", kbps))
		}
	case "openh264enc":
		props = append(props, fmt.Sprintf("gop-size=%d", keyInt))
		if kbps > 0 {
			props = append(props, fmt.Sprintf("bitrate=%d", kbps*1000))
		}
	case "vaapih264enc":
		props = append(props, fmt.Sprintf("keyframe-period=%d", keyInt))
		if kbps > 0 {
			props = append(props, fmt.Sprintf("bitrate=%d", kbps))
		}
	case "nvh264enc":
		props = append(props, fmt.Sprintf("gop-size=%d", keyInt))
		if kbps > 0 {
			props = append(props, fmt.Sprintf("bitrate=%d", kbps))
		}
	}
	return strings.Join(props, " ")
}

func audioEncoderElement(name string, kbps int) string {
	if kbps <= 0 {
		return name
	}
	return fmt.Sprintf("%s bitrate=%d", name, kbps*1000)
}

func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
