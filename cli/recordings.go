package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/yeti47/screenrec/recordings"
)

func NewRecordingsCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recordings",
		Short: "Manage the recordings catalog",
	}

	cmd.AddCommand(newRecordingsListCmd(deps))
	cmd.AddCommand(newRecordingsDeleteCmd(deps))
	cmd.AddCommand(newRecordingsAddCmd(deps))

	return cmd
}

func newRecordingsListCmd(deps *Dependencies) *cobra.Command {
	var page, pageSize int
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recordings, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := recordings.RecordingQuery{Page: page, PageSize: pageSize}
			if since > 0 {
				from := time.Now().Add(-since).UTC()
				query.StartTime = &from
			}

			items, total, err := deps.App.Repository.Query(cmd.Context(), query)
			if err != nil {
				return err
			}
			NewFormatter(cmd.OutOrStdout()).RecordingList(items, total, time.Now())
			return nil
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "Page to show")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "Recordings per page (0 lists all)")
	cmd.Flags().DurationVar(&since, "since", 0, "Only recordings created within this duration, e.g. 24h")

	return cmd
}

func newRecordingsDeleteCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete recordings with their files and thumbnails",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := NewFormatter(cmd.OutOrStdout())

			resp, err := deps.App.Deleter.DeleteRecordings(cmd.Context(), recordings.DeleteRecordingsRequest{IDs: args})
			if err != nil {
				return err
			}
			for _, id := range resp.Deleted {
				formatter.Success("Deleted " + id)
			}
			for _, msg := range resp.Errors {
				formatter.Error(msg)
			}
			if len(resp.Failed) > 0 {
				return fmt.Errorf("%d of %d recordings could not be deleted", len(resp.Failed), len(args))
			}
			return nil
		},
	}
}

func newRecordingsAddCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "add <file>...",
		Short: "Add existing video files to the catalog",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := NewFormatter(cmd.OutOrStdout())

			failed := 0
			for _, path := range args {
				if _, err := os.Stat(path); err != nil {
					formatter.Error(err.Error())
					failed++
					continue
				}
				rec, err := deps.App.Scanner.Scan(cmd.Context(), path, "")
				if err != nil {
					formatter.Error(fmt.Sprintf("%s: %v", path, err))
					failed++
					continue
				}
				formatter.Success(fmt.Sprintf("Added %s as %s", rec.Path, rec.ID))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files could not be added", failed, len(args))
			}
			return nil
		},
	}
}
