package portal

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeti47/screenrec/capture"
	"github.com/yeti47/screenrec/ccc/logging"
)

func TestRequestPath(t *testing.T) {
	got := requestPath(":1.42", "req_7")
	assert.Equal(t, dbus.ObjectPath("/org/freedesktop/portal/desktop/request/1_42/req_7"), got)
	assert.True(t, got.IsValid())
}

func TestParseResponse(t *testing.T) {
	results, err := parseResponse([]any{uint32(0), map[string]dbus.Variant{
		"session_handle": dbus.MakeVariant("/org/freedesktop/portal/desktop/session/1_42/s"),
	}})
	require.NoError(t, err)
	assert.Equal(t, "/org/freedesktop/portal/desktop/session/1_42/s", results["session_handle"].Value())

	results, err = parseResponse([]any{uint32(0), "unexpected"})
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = parseResponse([]any{uint32(1), map[string]dbus.Variant{}})
	assert.ErrorIs(t, err, capture.ErrPermissionDenied)

	_, err = parseResponse([]any{uint32(2), map[string]dbus.Variant{}})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, capture.ErrPermissionDenied)

	_, err = parseResponse([]any{uint32(0)})
	assert.Error(t, err)

	_, err = parseResponse([]any{"0", map[string]dbus.Variant{}})
	assert.Error(t, err)
}

func TestParseNodeID(t *testing.T) {
	props := map[string]dbus.Variant{"source_type": dbus.MakeVariant(uint32(1))}

	tests := []struct {
		name    string
		streams any
		want    uint32
		wantErr bool
	}{
		{name: "array of structs", streams: [][]any{{uint32(57), props}}, want: 57},
		{name: "interface array of structs", streams: []any{[]any{uint32(58), props}}, want: 58},
		{name: "single flattened struct", streams: []any{uint32(59), props}, want: 59},
		{name: "empty", streams: [][]any{}, wantErr: true},
		{name: "zero node", streams: [][]any{{uint32(0), props}}, wantErr: true},
		{name: "wrong type", streams: "nope", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseNodeID(tt.streams)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type foreignToken struct{}

func (foreignToken) Revoked() <-chan struct{} { return nil }
func (foreignToken) Stop() error              { return nil }

type plainEncoder struct{ capture.Encoder }

func TestCreateDisplay_RejectsForeignTokenAndEncoder(t *testing.T) {
	p := &Platform{logger: logging.NopLogger}

	_, err := p.CreateDisplay(foreignToken{}, plainEncoder{}, capture.Settings{})
	assert.Error(t, err)

	_, err = p.CreateDisplay(&Token{}, plainEncoder{}, capture.Settings{})
	assert.Error(t, err)
}

func TestPlatformSupportsPause(t *testing.T) {
	assert.True(t, (&Platform{}).SupportsPause())
}
