package cli

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	controlserver "github.com/yeti47/screenrec/control-server"
)

func NewServeCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the recorder with its local control API",
		Long:  "Run in the background, accepting recording commands, catalog queries and trims over HTTP on the configured listen address.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, deps)
		},
	}

	addCaptureFlags(cmd.Flags())
	cmd.Flags().String(flagListen, "", "Address the control API listens on")

	return cmd
}

func runServer(ctx context.Context, deps *Dependencies) error {
	a := deps.App
	logger := a.Logger

	rec, err := a.NewRecorder(context.Background())
	if err != nil {
		return err
	}
	defer rec.Close()

	trims := a.NewTrimQueue()
	stopTrims := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go trims.Start(stopTrims, &wg, rec.Service.TrimCallbacks())

	server := controlserver.NewServer(logger, a.Config(), controlserver.Dependencies{
		Recorder:   rec.Session,
		Repository: a.Repository,
		Deleter:    a.Deleter,
		Trims:      trims,
	})

	serveErr := server.Run(ctx)

	logger.Info("Shutting down")
	close(stopTrims)
	wg.Wait()

	// a recording still running is stopped and kept
	if err := rec.Close(); err != nil {
		logger.Warn("Failed to release recorder", "error", err)
	}
	return serveErr
}
