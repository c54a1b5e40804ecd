package recordings

import (
	"context"
	"errors"
	"fmt"

	"github.com/yeti47/screenrec/ccc/logging"
	filemanagement "github.com/yeti47/screenrec/file-management"
)

type DeleteRecordingsRequest struct {
	IDs []string `json:"ids"`
}

type DeleteRecordingsResponse struct {
	Deleted []string `json:"deleted"`
	Failed  []string `json:"failed"`
	Errors  []string `json:"errors"`
}

type Deleter interface {
	// DeleteRecordings removes the files, thumbnails and catalog entries of the given recordings.
	// Returns information about which recordings were deleted and which failed
	DeleteRecordings(ctx context.Context, req DeleteRecordingsRequest) (*DeleteRecordingsResponse, error)
}

type deleter struct {
	logger logging.Logger
	repo   Repository
	files  filemanagement.FileTracker
}

func NewDeleter(logger logging.Logger, repo Repository, files filemanagement.FileTracker) Deleter {
	if logger == nil {
		logger = logging.NopLogger
	}

	return &deleter{
		logger: logger,
		repo:   repo,
		files:  files,
	}
}

func (d *deleter) DeleteRecordings(ctx context.Context, req DeleteRecordingsRequest) (*DeleteRecordingsResponse, error) {
	if len(req.IDs) == 0 {
		return nil, errors.New("no recording IDs provided")
	}

	response := &DeleteRecordingsResponse{
		Deleted: make([]string, 0),
		Failed:  make([]string, 0),
		Errors:  make([]string, 0),
	}

	for _, id := range req.IDs {
		if err := d.deleteOne(ctx, id); err != nil {
			d.logger.Error("Failed to delete recording", "id", id, "error", err)
			response.Failed = append(response.Failed, id)
			response.Errors = append(response.Errors, fmt.Sprintf("failed to delete recording %s: %v", id, err))
			continue
		}

		response.Deleted = append(response.Deleted, id)
		d.logger.Info("Deleted recording", "id", id)
	}

	d.logger.Info("Recording deletion completed", "requested", len(req.IDs), "deleted", len(response.Deleted), "failed", len(response.Failed))
	return response, nil
}

func (d *deleter) deleteOne(ctx context.Context, id string) error {
	recording, err := d.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if recording == nil {
		return errors.New("not found")
	}

	if err := d.repo.Delete(ctx, id); err != nil {
		return err
	}
	d.files.DeleteFile(recording.Path)
	d.files.DeleteFile(recording.ThumbnailPath)
	return nil
}
