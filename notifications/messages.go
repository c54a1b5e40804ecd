package notifications

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
)

// RecordingSaved tells the user where a finished recording went.
func RecordingSaved(path string, size int64, duration time.Duration) Notification {
	body := filepath.Base(path)
	if size > 0 {
		body = fmt.Sprintf("%s (%s", body, humanize.Bytes(uint64(size)))
		if duration > 0 {
			body += ", " + duration.Round(time.Second).String()
		}
		body += ")"
	}
	return Notification{Summary: "Recording saved", Body: body, Urgency: UrgencyNormal}
}

// RecordingFailed reports a fault that ended or prevented a recording.
func RecordingFailed(err error) Notification {
	return Notification{Summary: "Recording problem", Body: err.Error(), Urgency: UrgencyCritical}
}

// TrimFinished reports a finished trim job.
func TrimFinished(outputPath string) Notification {
	return Notification{Summary: "Trimmed recording saved", Body: filepath.Base(outputPath), Urgency: UrgencyLow}
}

// TrimFailed reports a trim job that produced no output.
func TrimFailed(inputPath string, err error) Notification {
	return Notification{
		Summary: "Trimming failed",
		Body:    fmt.Sprintf("%s: %v", filepath.Base(inputPath), err),
		Urgency: UrgencyNormal,
	}
}
