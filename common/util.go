package common

import (
	"path/filepath"
	"strings"
)

// VideoFormatToMimeType returns the MIME type for a container format or file extension.
func VideoFormatToMimeType(format string) string {
	format = strings.ToLower(format)
	format = strings.TrimPrefix(format, ".")
	switch format {
	case "mp4", "m4v":
		return "video/mp4"
	case "mkv":
		return "video/x-matroska"
	case "webm":
		return "video/webm"
	case "mov":
		return "video/quicktime"
	default:
		return "application/octet-stream"
	}
}

// MimeTypeForPath returns the MIME type implied by the file extension of path.
func MimeTypeForPath(path string) string {
	return VideoFormatToMimeType(filepath.Ext(path))
}

// EditedFileName derives the name of a trimmed copy: "a.mp4" becomes "a-edited.mp4".
func EditedFileName(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "-edited" + ext
}
