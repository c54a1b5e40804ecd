package capture

import (
	"context"
	"time"
)

type State int

const (
	StateIdle State = iota
	StateAwaitingToken
	StatePreparing
	StateRecording
	StatePaused
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingToken:
		return "awaiting_token"
	case StatePreparing:
		return "preparing"
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// resources are what a session holds between receiving a token and returning to idle.
type resources struct {
	token      Token
	outputFile string
	encoder    Encoder
	display    Display
	startedAt  time.Time
}

// sessionState is one of the variants below. Each variant carries exactly the
// resources that may exist in that state.
type sessionState interface {
	State() State
}

type idle struct{}

type awaitingToken struct {
	cancel context.CancelFunc
}

type preparing struct {
	res resources
}

type recording struct {
	res      resources
	deadline time.Time // zero without a maximum duration
}

type paused struct {
	res resources
}

type stopping struct {
	res resources
}

func (idle) State() State          { return StateIdle }
func (awaitingToken) State() State { return StateAwaitingToken }
func (preparing) State() State     { return StatePreparing }
func (recording) State() State     { return StateRecording }
func (paused) State() State        { return StatePaused }
func (stopping) State() State      { return StateStopping }

// Status is a point in time view of a session.
type Status struct {
	State      State     `json:"state"`
	OutputFile string    `json:"output_file,omitempty"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	Deadline   time.Time `json:"deadline,omitzero"`
}

func statusOf(st sessionState) Status {
	status := Status{State: st.State()}
	switch v := st.(type) {
	case preparing:
		status.OutputFile = v.res.outputFile
	case recording:
		status.OutputFile = v.res.outputFile
		status.StartedAt = v.res.startedAt
		status.Deadline = v.deadline
	case paused:
		status.OutputFile = v.res.outputFile
		status.StartedAt = v.res.startedAt
	case stopping:
		status.OutputFile = v.res.outputFile
		status.StartedAt = v.res.startedAt
	}
	return status
}
