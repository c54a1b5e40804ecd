package recordings

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xfrr/goffmpeg/transcoder"
	"github.com/yeti47/screenrec/ccc/logging"
	"github.com/yeti47/screenrec/common"
)

// MetadataExtractor defines the interface for extracting video metadata
type MetadataExtractor interface {
	// ExtractMetadata probes the video file at path
	ExtractMetadata(path string) (*VideoMetadata, error)
}

// FFmpegMetadataExtractor implements MetadataExtractor using ffprobe
type FFmpegMetadataExtractor struct {
	logger logging.Logger
}

// NewFFmpegMetadataExtractor creates a new FFmpeg-based metadata extractor
func NewFFmpegMetadataExtractor(logger logging.Logger) *FFmpegMetadataExtractor {
	if logger == nil {
		logger = logging.NopLogger
	}

	return &FFmpegMetadataExtractor{
		logger: logger,
	}
}

func (e *FFmpegMetadataExtractor) ExtractMetadata(path string) (*VideoMetadata, error) {
	trans := new(transcoder.Transcoder)
	if err := trans.Initialize(path, ""); err != nil {
		return nil, fmt.Errorf("failed to initialize transcoder for metadata: %w", err)
	}

	metadata := trans.MediaFile().Metadata()

	meta := &VideoMetadata{
		MimeType:  common.MimeTypeForPath(path),
		Extension: strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
	}
	meta.Duration = parseSeconds(metadata.Format.Duration)

	for _, stream := range metadata.Streams {
		if stream.CodecType != "video" {
			continue
		}
		meta.Width = stream.Width
		meta.Height = stream.Height
		if meta.Duration == 0 {
			meta.Duration = parseSeconds(stream.Duration)
		}
		break // first video stream
	}

	if meta.Width == 0 || meta.Height == 0 {
		return nil, fmt.Errorf("could not extract video dimensions")
	}

	e.logger.Debug("Extracted video metadata", "path", path, "width", meta.Width, "height", meta.Height, "duration", meta.Duration.String())
	return meta, nil
}

// parseSeconds converts ffprobe's decimal seconds, returning 0 for missing values.
func parseSeconds(s string) time.Duration {
	seconds, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second)).Round(time.Millisecond)
}
