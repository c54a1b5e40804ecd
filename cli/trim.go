package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yeti47/screenrec/common"
	filemanagement "github.com/yeti47/screenrec/file-management"
	"github.com/yeti47/screenrec/trim"
)

func NewTrimCmd(deps *Dependencies) *cobra.Command {
	var start, end time.Duration
	var output string

	cmd := &cobra.Command{
		Use:   "trim <recording-id|file>",
		Short: "Cut a recording to a time range without re-encoding",
		Long:  "Copy the samples between --start and --end (exclusive) into a new MP4.\nThe output defaults to the input name with an -edited suffix and is added to the catalog.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			job, err := resolveTrimJob(ctx, deps, args[0], start, end, output)
			if err != nil {
				return err
			}
			return runTrim(ctx, deps, job, NewFormatter(cmd.OutOrStdout()))
		},
	}

	cmd.Flags().DurationVar(&start, "start", 0, "Start of the kept range, e.g. 1m30s")
	cmd.Flags().DurationVar(&end, "end", 0, "End of the kept range (exclusive)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file")
	cmd.MarkFlagRequired("end")

	return cmd
}

// resolveTrimJob accepts either a catalogued recording ID or a file path.
func resolveTrimJob(ctx context.Context, deps *Dependencies, ref string, start, end time.Duration, output string) (trim.Job, error) {
	job := trim.Job{
		StartMs: start.Milliseconds(),
		EndMs:   end.Milliseconds(),
	}

	rec, err := deps.App.Repository.GetByID(ctx, ref)
	if err != nil {
		return job, err
	}
	if rec != nil {
		job.RecordingID = rec.ID
		job.InputPath = rec.Path
	} else {
		if _, err := os.Stat(ref); err != nil {
			return job, fmt.Errorf("no recording or file named %q", ref)
		}
		job.InputPath = ref
	}

	job.OutputPath = output
	if job.OutputPath == "" {
		job.OutputPath = common.EditedFileName(job.InputPath)
	}
	if filepath.Clean(job.OutputPath) == filepath.Clean(job.InputPath) {
		return job, fmt.Errorf("output must differ from the input %s", job.InputPath)
	}
	return job, nil
}

func runTrim(ctx context.Context, deps *Dependencies, job trim.Job, formatter *Formatter) error {
	if err := trimOrDiscard(ctx, deps.App.NewTrimmer(), deps.App.Files, job); err != nil {
		return err
	}

	var size int64
	if info, err := os.Stat(job.OutputPath); err == nil {
		size = info.Size()
	}
	formatter.TrimDone(job, size)

	if _, err := deps.App.Scanner.Scan(ctx, job.OutputPath, job.RecordingID); err != nil {
		formatter.Warning(fmt.Sprintf("Trimmed file was not added to the catalog: %v", err))
	}
	return nil
}

// trimOrDiscard runs the trim and removes whatever it wrote when it fails or is cancelled.
func trimOrDiscard(ctx context.Context, trimmer trim.Trimmer, files filemanagement.FileTracker, job trim.Job) error {
	if err := trimmer.TrimContext(ctx, job.InputPath, job.OutputPath, job.StartMs, job.EndMs); err != nil {
		files.DeleteFile(job.OutputPath)
		return err
	}
	return nil
}
