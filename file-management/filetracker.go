package filemanagement

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/yeti47/screenrec/ccc/logging"
)

// FileTracker manages the files produced by recordings and trims
type FileTracker interface {
	// DeleteFile removes a file from disk. Missing files are not an error.
	DeleteFile(filePath string)

	// EnsureDirectory creates dir (and parents) if it doesn't exist
	EnsureDirectory(dir string) error

	// NewOutputFile returns a not yet existing path in dir named after prefix, t and suffix.
	NewOutputFile(dir, prefix string, t time.Time, suffix string) (string, error)
}

const timestampLayout = "20060102-150405"

// LocalFileTracker implements FileTracker for local filesystem
type LocalFileTracker struct {
	logger logging.Logger
	mu     sync.Mutex
}

// NewLocalFileTracker creates a new local file tracker
func NewLocalFileTracker(logger logging.Logger) *LocalFileTracker {
	if logger == nil {
		logger = logging.NopLogger
	}
	return &LocalFileTracker{logger: logger}
}

// DeleteFile removes a file from disk
func (t *LocalFileTracker) DeleteFile(filePath string) {
	if filePath == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := os.Remove(filePath); err != nil {
		if !os.IsNotExist(err) {
			t.logger.Warn("Failed to remove file", "path", filePath, "error", err)
		}
		return
	}
	t.logger.Debug("Deleted file", "path", filePath)
}

// EnsureDirectory creates the directory if it doesn't exist
func (t *LocalFileTracker) EnsureDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// NewOutputFile builds <dir>/<prefix>-<timestamp><suffix>, appending a counter when
// a file with that name already exists (two recordings within the same second).
func (t *LocalFileTracker) NewOutputFile(dir, prefix string, ts time.Time, suffix string) (string, error) {
	if err := t.EnsureDirectory(dir); err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	base := fmt.Sprintf("%s-%s", prefix, ts.Format(timestampLayout))
	for i := 0; i < 100; i++ {
		name := base + suffix
		if i > 0 {
			name = fmt.Sprintf("%s-%d%s", base, i, suffix)
		}
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path, nil
		}
	}
	return "", fmt.Errorf("no free file name for %s in %s", base, dir)
}
