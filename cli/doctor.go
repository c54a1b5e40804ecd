package cli

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"

	"github.com/yeti47/screenrec/autostop"
	"github.com/yeti47/screenrec/capture/gstreamer"
)

const screenCastPortal = "org.freedesktop.portal.Desktop"

func NewDoctorCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := NewFormatter(cmd.OutOrStdout())
			cfg := deps.App.Config()
			ok := true

			check := func(name string, err error, detail string) {
				if err != nil {
					f.SetupCheck(name, false, err.Error())
					ok = false
					return
				}
				f.SetupCheck(name, true, detail)
			}

			check("Screen cast portal", checkPortal(), "available on the session bus")

			provider := gstreamer.NewRegistryProvider()
			if missing := gstreamer.MissingElements(provider, gstreamer.RequiredElements...); len(missing) > 0 {
				check("GStreamer elements", errors.New("missing "+strings.Join(missing, ", ")), "")
			} else {
				check("GStreamer elements", nil, "installed")
			}

			encoder, err := gstreamer.SelectVideoEncoder(provider, cfg.VideoEncoder, deps.App.Logger)
			check("H.264 encoder", err, encoder)

			if cfg.RecordAudio {
				missing := gstreamer.MissingElements(provider, gstreamer.AudioElements...)
				aac, err := gstreamer.SelectAudioEncoder(provider)
				if err == nil && len(missing) > 0 {
					err = errors.New("missing " + strings.Join(missing, ", "))
				}
				check("Audio", err, aac)
			} else {
				f.SetupCheck("Audio", true, "disabled")
			}

			_, err = exec.LookPath("ffprobe")
			check("ffprobe", err, "installed (thumbnails and metadata)")

			folder := cfg.RecordingsFolder
			if err := deps.App.Files.EnsureDirectory(folder); err != nil {
				check("Recordings folder", err, "")
			} else if free, err := (autostop.StatfsProbe{}).FreeBytes(folder); err != nil {
				check("Recordings folder", err, "")
			} else {
				f.SetupCheck("Recordings folder", free >= autostop.DefaultMinFreeBytes,
					fmt.Sprintf("%s, %s free", folder, humanize.IBytes(free)))
			}

			battery := autostop.DefaultBatteryProbe()
			if pct, err := battery.Percent(); errors.Is(err, autostop.ErrNoBattery) {
				f.SetupCheck("Battery", true, "none")
			} else {
				check("Battery", err, fmt.Sprintf("%d%%", pct))
			}

			if ok {
				f.Success("\nAll prerequisites met. Ready to record!")
			} else {
				f.Warning("\nSome prerequisites are missing.")
			}
			return nil
		},
	}
}

func checkPortal() error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("no session bus: %w", err)
	}
	defer conn.Close()

	var hasOwner bool
	if err := conn.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, screenCastPortal).Store(&hasOwner); err != nil {
		return err
	}
	if !hasOwner {
		return errors.New(screenCastPortal + " is not running")
	}
	return nil
}
