package autostop

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

var (
	// ErrLowStorage is the limit reached when the recordings folder runs out of space
	ErrLowStorage = errors.New("low storage")
	// ErrLowBattery is the limit reached when the battery is nearly empty
	ErrLowBattery = errors.New("low battery")
)

// LimitError reports the resource limit that stopped a recording.
type LimitError struct {
	Limit error // ErrLowStorage or ErrLowBattery

	FreeBytes     uint64
	MinFreeBytes  uint64
	BatteryPct    int
	MinBatteryPct int
}

func (e *LimitError) Error() string {
	switch e.Limit {
	case ErrLowStorage:
		return fmt.Sprintf("recording stopped, low storage: %s free (minimum %s)",
			humanize.IBytes(e.FreeBytes), humanize.IBytes(e.MinFreeBytes))
	case ErrLowBattery:
		return fmt.Sprintf("recording stopped, low battery: %d%% remaining (minimum %d%%)", e.BatteryPct, e.MinBatteryPct)
	default:
		return fmt.Sprintf("recording stopped: %v", e.Limit)
	}
}

func (e *LimitError) Unwrap() error {
	return e.Limit
}

// IsLimitError checks if the error is (or wraps) a LimitError
func IsLimitError(err error) bool {
	var limitErr *LimitError
	return errors.As(err, &limitErr)
}
