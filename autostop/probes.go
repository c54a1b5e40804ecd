package autostop

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"
)

// StorageProbe reads the free space available to unprivileged users at a path.
type StorageProbe interface {
	FreeBytes(path string) (uint64, error)
}

// BatteryProbe reads the battery charge in percent.
type BatteryProbe interface {
	Percent() (int, error)
}

// ErrNoBattery is returned by battery probes on machines without one.
var ErrNoBattery = errors.New("no battery present")

// StatfsProbe implements StorageProbe with statfs(2).
type StatfsProbe struct{}

func (StatfsProbe) FreeBytes(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return st.Bavail * uint64(st.Bsize), nil
}

const (
	upowerBus        = "org.freedesktop.UPower"
	upowerDisplayDev = "/org/freedesktop/UPower/devices/DisplayDevice"
	upowerDeviceIf   = "org.freedesktop.UPower.Device"
)

// UPowerProbe reads the composite display device from UPower on the system bus.
type UPowerProbe struct {
	mu   sync.Mutex
	conn *dbus.Conn
}

func (p *UPowerProbe) connection() (*dbus.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil && p.conn.Connected() {
		return p.conn, nil
	}
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	p.conn = conn
	return conn, nil
}

func (p *UPowerProbe) Percent() (int, error) {
	conn, err := p.connection()
	if err != nil {
		return 0, err
	}
	device := conn.Object(upowerBus, upowerDisplayDev)

	present, err := device.GetProperty(upowerDeviceIf + ".IsPresent")
	if err != nil {
		return 0, fmt.Errorf("read UPower IsPresent: %w", err)
	}
	if ok, _ := present.Value().(bool); !ok {
		return 0, ErrNoBattery
	}

	pct, err := device.GetProperty(upowerDeviceIf + ".Percentage")
	if err != nil {
		return 0, fmt.Errorf("read UPower Percentage: %w", err)
	}
	value, ok := pct.Value().(float64)
	if !ok {
		return 0, fmt.Errorf("unexpected UPower Percentage %v", pct.Value())
	}
	return int(value + 0.5), nil
}

// Close closes the system bus connection if one was opened.
func (p *UPowerProbe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

// SysfsProbe reads the first BAT* power supply under Root.
type SysfsProbe struct {
	Root string // defaults to /sys/class/power_supply
}

func (p SysfsProbe) Percent() (int, error) {
	root := p.Root
	if root == "" {
		root = "/sys/class/power_supply"
	}

	matches, err := filepath.Glob(filepath.Join(root, "BAT*", "capacity"))
	if err != nil {
		return 0, err
	}
	if len(matches) == 0 {
		return 0, ErrNoBattery
	}
	sort.Strings(matches)

	data, err := os.ReadFile(matches[0])
	if err != nil {
		return 0, err
	}
	pct, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", matches[0], err)
	}
	return pct, nil
}

// FirstBatteryProbe asks each probe in turn and returns the first reading.
type FirstBatteryProbe []BatteryProbe

func (probes FirstBatteryProbe) Percent() (int, error) {
	var errs []error
	for _, probe := range probes {
		pct, err := probe.Percent()
		if err == nil {
			return pct, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return 0, ErrNoBattery
	}
	return 0, errors.Join(errs...)
}

// DefaultBatteryProbe prefers UPower and falls back to sysfs.
func DefaultBatteryProbe() FirstBatteryProbe {
	return FirstBatteryProbe{&UPowerProbe{}, SysfsProbe{}}
}
