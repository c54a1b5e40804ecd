// Package cli implements the screenrec command line.
package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/yeti47/screenrec/app"
	"github.com/yeti47/screenrec/config"
)

type Dependencies struct {
	// App is opened before any command that needs it runs.
	App *app.App

	configPath string
	logLevel   string
	verbose    bool
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "screenrec",
		Short:         "Record the screen, catalog and trim recordings",
		Long:          "screenrec records the desktop through the screen cast portal into MP4 files, keeps a catalog of recordings and trims them without re-encoding.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return deps.open(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return deps.Close()
		},
	}

	rootCmd.Version = Version
	rootCmd.SetVersionTemplate(fullVersion() + "\n")

	rootCmd.PersistentFlags().StringVarP(&deps.configPath, "config", "c", config.DefaultConfigPath(), "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&deps.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&deps.verbose, "verbose", "v", false, "Also write logs to stderr")

	rootCmd.AddCommand(NewRecordCmd(deps))
	rootCmd.AddCommand(NewServeCmd(deps))
	rootCmd.AddCommand(NewTrimCmd(deps))
	rootCmd.AddCommand(NewRecordingsCmd(deps))
	rootCmd.AddCommand(NewDoctorCmd(deps))

	return rootCmd
}

func (d *Dependencies) open(cmd *cobra.Command) error {
	if d.App != nil {
		return nil
	}

	overrides := overridesFromFlags(cmd.Flags())
	if d.logLevel != "" {
		overrides.LogLevel = &d.logLevel
	}

	application, err := app.New(app.Options{
		ConfigPath: d.configPath,
		Overrides:  overrides,
		Console:    d.verbose,
	})
	if err != nil {
		return err
	}
	d.App = application
	return nil
}

// Close releases the App if a command opened it.
func (d *Dependencies) Close() error {
	if d.App == nil {
		return nil
	}
	err := d.App.Close()
	d.App = nil
	return err
}

// Flag names shared by the commands that accept configuration overrides.
const (
	flagFolder      = "folder"
	flagMaxDuration = "max-duration"
	flagResolution  = "resolution"
	flagFrameRate   = "fps"
	flagEncoder     = "encoder"
	flagAudio       = "audio"
	flagListen      = "listen"
)

func addCaptureFlags(flags *pflag.FlagSet) {
	flags.String(flagFolder, "", "Folder recordings are written to")
	flags.Int(flagMaxDuration, 0, "Stop recording after this many minutes (0 disables the limit)")
	flags.String(flagResolution, "", "Output resolution, e.g. 1920x1080 or 720p")
	flags.Int(flagFrameRate, 0, "Frames per second")
	flags.String(flagEncoder, "", "Preferred GStreamer H.264 encoder element")
	flags.Bool(flagAudio, false, "Record audio from the default source")
}

// overridesFromFlags turns the override flags a user actually set into config overrides.
func overridesFromFlags(flags *pflag.FlagSet) config.ConfigOverrides {
	var o config.ConfigOverrides

	stringFlag := func(name string) *string {
		if !flags.Changed(name) {
			return nil
		}
		v, err := flags.GetString(name)
		if err != nil {
			return nil
		}
		return &v
	}
	intFlag := func(name string) *int {
		if !flags.Changed(name) {
			return nil
		}
		v, err := flags.GetInt(name)
		if err != nil {
			return nil
		}
		return &v
	}

	o.RecordingsFolder = stringFlag(flagFolder)
	o.MaxDurationMinutes = intFlag(flagMaxDuration)
	o.Resolution = stringFlag(flagResolution)
	o.FrameRate = intFlag(flagFrameRate)
	o.VideoEncoder = stringFlag(flagEncoder)
	o.ListenAddr = stringFlag(flagListen)
	if flags.Changed(flagAudio) {
		if v, err := flags.GetBool(flagAudio); err == nil {
			o.RecordAudio = &v
		}
	}
	return o
}
