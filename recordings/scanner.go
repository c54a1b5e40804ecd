package recordings

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/yeti47/screenrec/ccc/logging"
	"github.com/yeti47/screenrec/common"
)

// Scanner adds finished recordings to the catalog.
type Scanner interface {
	// Scan catalogs the file at path, returning the existing entry if it is already known.
	// sourceID names the recording a trimmed copy was made from.
	Scan(ctx context.Context, path string, sourceID string) (*Recording, error)
}

type scanner struct {
	logger       logging.Logger
	repo         Repository
	metadata     MetadataExtractor
	thumbnails   ThumbnailGenerator
	thumbnailDir string
}

// NewScanner creates a scanner storing thumbnails in thumbnailDir. metadata and thumbnails may be nil.
func NewScanner(logger logging.Logger, repo Repository, metadata MetadataExtractor, thumbnails ThumbnailGenerator, thumbnailDir string) Scanner {
	if logger == nil {
		logger = logging.NopLogger
	}
	return &scanner{
		logger:       logger,
		repo:         repo,
		metadata:     metadata,
		thumbnails:   thumbnails,
		thumbnailDir: thumbnailDir,
	}
}

func (s *scanner) Scan(ctx context.Context, path string, sourceID string) (*Recording, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	existing, err := s.repo.GetByPath(ctx, absPath)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat recording: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", absPath)
	}

	recording := &Recording{
		ID:        uuid.NewString(),
		Path:      absPath,
		Title:     strings.TrimSuffix(filepath.Base(absPath), filepath.Ext(absPath)),
		CreatedAt: info.ModTime().UTC(),
		SizeBytes: info.Size(),
		MimeType:  common.MimeTypeForPath(absPath),
		SourceID:  sourceID,
	}

	if s.metadata != nil {
		meta, err := s.metadata.ExtractMetadata(absPath)
		if err != nil {
			s.logger.Warn("Failed to extract recording metadata", "path", absPath, "error", err)
		} else {
			recording.Width = meta.Width
			recording.Height = meta.Height
			recording.Duration = meta.Duration
			if meta.MimeType != "" {
				recording.MimeType = meta.MimeType
			}

			if s.thumbnails != nil {
				thumbPath := filepath.Join(s.thumbnailDir, recording.ID+".png")
				if thumb, err := s.thumbnails.GenerateThumbnail(absPath, thumbPath, meta); err != nil {
					s.logger.Warn("Failed to generate thumbnail", "path", absPath, "error", err)
				} else {
					recording.ThumbnailPath = thumb.Path
				}
			}
		}
	}

	if err := s.repo.Add(ctx, recording); err != nil {
		return nil, err
	}

	s.logger.Info("Recording added to catalog", "id", recording.ID, "path", absPath, "duration", recording.Duration.String())
	return recording, nil
}
