package recordings

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xfrr/goffmpeg/transcoder"
	"github.com/yeti47/screenrec/ccc/logging"
)

// ThumbnailGenerator defines the interface for generating video thumbnails
type ThumbnailGenerator interface {
	// GenerateThumbnail writes a still of the video at videoPath to thumbnailPath
	GenerateThumbnail(videoPath, thumbnailPath string, videoMeta *VideoMetadata) (*Thumbnail, error)
}

// FFmpegThumbnailGenerator implements ThumbnailGenerator using FFmpeg
type FFmpegThumbnailGenerator struct {
	logger logging.Logger
}

// NewFFmpegThumbnailGenerator creates a new FFmpeg-based thumbnail generator
func NewFFmpegThumbnailGenerator(logger logging.Logger) *FFmpegThumbnailGenerator {
	if logger == nil {
		logger = logging.NopLogger
	}

	return &FFmpegThumbnailGenerator{
		logger: logger,
	}
}

// thumbnailDimensions fits the video into 480x360 preserving aspect ratio, with even sides.
func thumbnailDimensions(videoWidth, videoHeight int) (int, int) {
	const maxThumbnailWidth = 480
	const maxThumbnailHeight = 360

	if videoWidth <= 0 || videoHeight <= 0 {
		return maxThumbnailWidth, maxThumbnailHeight
	}

	aspectRatio := float64(videoWidth) / float64(videoHeight)

	var thumbWidth, thumbHeight int
	if float64(maxThumbnailWidth)/aspectRatio <= float64(maxThumbnailHeight) {
		thumbWidth = maxThumbnailWidth
		thumbHeight = int(float64(maxThumbnailWidth) / aspectRatio)
	} else {
		thumbHeight = maxThumbnailHeight
		thumbWidth = int(float64(maxThumbnailHeight) * aspectRatio)
	}

	thumbWidth = (thumbWidth / 2) * 2
	thumbHeight = (thumbHeight / 2) * 2
	return thumbWidth, thumbHeight
}

// seekTime picks a frame one second in, or the first frame of very short videos.
func seekTime(meta *VideoMetadata) string {
	if meta.Duration > 2*time.Second {
		return "00:00:01"
	}
	return "00:00:00"
}

func (g *FFmpegThumbnailGenerator) GenerateThumbnail(videoPath, thumbnailPath string, videoMeta *VideoMetadata) (*Thumbnail, error) {
	if err := os.MkdirAll(filepath.Dir(thumbnailPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create thumbnail directory: %w", err)
	}

	thumbWidth, thumbHeight := thumbnailDimensions(videoMeta.Width, videoMeta.Height)

	trans := new(transcoder.Transcoder)
	if err := trans.Initialize(videoPath, thumbnailPath); err != nil {
		return nil, fmt.Errorf("failed to initialize transcoder: %w", err)
	}

	trans.MediaFile().SetSeekTime(seekTime(videoMeta))
	trans.MediaFile().SetVideoFilter(fmt.Sprintf("scale=%d:%d", thumbWidth, thumbHeight))
	trans.MediaFile().SetVideoCodec("png")
	trans.MediaFile().SetSkipAudio(true)
	trans.MediaFile().SetOutputFormat("image2")
	trans.MediaFile().SetVideoBitRate("1")

	done := trans.Run(false)
	if err := <-done; err != nil {
		os.Remove(thumbnailPath)
		return nil, fmt.Errorf("ffmpeg transcoding failed: %w", err)
	}

	g.logger.Debug("Generated thumbnail", "path", thumbnailPath, "width", thumbWidth, "height", thumbHeight)

	return &Thumbnail{
		Path:     thumbnailPath,
		Width:    thumbWidth,
		Height:   thumbHeight,
		MimeType: "image/png",
	}, nil
}
