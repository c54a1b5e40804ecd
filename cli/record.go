package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yeti47/screenrec/autostop"
	"github.com/yeti47/screenrec/capture"
)

type recordOutcome struct {
	file      string
	cancelled bool
	started   bool
	err       error
}

func NewRecordCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record the screen until Ctrl+C",
		Long:  "Request a screen capture grant and record in the foreground.\nCtrl+C stops and keeps the recording. The recording also stops at the configured maximum duration or when storage or battery run low.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runRecording(ctx, deps, NewFormatter(cmd.OutOrStdout()))
		},
	}

	addCaptureFlags(cmd.Flags())

	return cmd
}

func runRecording(ctx context.Context, deps *Dependencies, formatter *Formatter) error {
	rec, err := deps.App.NewRecorder(context.Background())
	if err != nil {
		return err
	}
	defer rec.Close()

	outcomes := make(chan recordOutcome, 4)
	// listeners run on the session goroutine, so never block here
	report := func(o recordOutcome) {
		select {
		case outcomes <- o:
		default:
		}
	}

	var started atomic.Bool
	unsubscribe := rec.Session.Subscribe(capture.Listener{
		OnStart: func() {
			started.Store(true)
			formatter.RecordingStarted(rec.Session.Status().OutputFile, true)
		},
		OnStop: func(file string) {
			report(recordOutcome{file: file})
		},
		OnCancel: func() {
			report(recordOutcome{cancelled: true, started: started.Load()})
		},
		OnError: func(err error) {
			if autostop.IsLimitError(err) {
				// the stop event for the file has already been reported
				formatter.Warning(err.Error())
				return
			}
			report(recordOutcome{err: err})
		},
	})
	defer unsubscribe()

	formatter.WaitingForPermission()
	startedAt := time.Now()
	rec.Session.Start()

	var outcome recordOutcome
	select {
	case outcome = <-outcomes:
	case <-ctx.Done():
		rec.Session.Stop()
		outcome = <-outcomes
	}

	// wait for the recording to be catalogued
	if err := rec.Close(); err != nil {
		deps.App.Logger.Warn("Failed to release recorder", "error", err)
	}

	switch {
	case outcome.err != nil:
		return outcome.err
	case outcome.cancelled && !outcome.started && ctx.Err() != nil:
		formatter.Info("Recording request abandoned")
		return nil
	case outcome.cancelled && !outcome.started:
		return errors.New("no recording was made, screen capture was not granted")
	case outcome.cancelled:
		formatter.RecordingCancelled()
		return nil
	}

	var size int64
	if info, err := os.Stat(outcome.file); err == nil {
		size = info.Size()
	}
	duration := time.Since(startedAt)
	if r, err := deps.App.Repository.GetByPath(context.Background(), outcome.file); err == nil && r != nil && r.Duration > 0 {
		duration = r.Duration
	}
	formatter.RecordingSaved(outcome.file, size, duration)
	return nil
}
