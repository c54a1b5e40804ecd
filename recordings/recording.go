package recordings

import "time"

// Recording is a finished video file known to the catalog.
type Recording struct {
	ID            string        `json:"id"`
	Path          string        `json:"path"`
	Title         string        `json:"title"`
	CreatedAt     time.Time     `json:"created_at"`
	Duration      time.Duration `json:"duration"`
	SizeBytes     int64         `json:"size_bytes"`
	Width         int           `json:"width"`
	Height        int           `json:"height"`
	MimeType      string        `json:"mime_type"`
	ThumbnailPath string        `json:"thumbnail_path,omitempty"`
	SourceID      string        `json:"source_id,omitempty"` // set on trimmed copies
}

// RecordingQuery represents query parameters for listing recordings
type RecordingQuery struct {
	StartTime *time.Time
	EndTime   *time.Time
	Page      int // 1-based; ignored without PageSize
	PageSize  int // 0 means no pagination
}

// VideoMetadata contains extracted video information
type VideoMetadata struct {
	Width     int
	Height    int
	Duration  time.Duration
	MimeType  string
	Extension string
}

// Thumbnail is a still image generated for a recording
type Thumbnail struct {
	Path     string
	Width    int
	Height   int
	MimeType string
}
