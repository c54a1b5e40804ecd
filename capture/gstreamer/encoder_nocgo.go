//go:build !cgo

package gstreamer

import (
	"github.com/yeti47/screenrec/capture"
	"github.com/yeti47/screenrec/ccc/logging"
)

// InitGStreamer is a no-op when CGO is disabled.
func InitGStreamer() {}

// NewRegistryProvider reports every element as missing when CGO is disabled.
func NewRegistryProvider() *CachedElementProvider {
	return NewCachedElementProvider(func(string) bool { return false })
}

// Encoder is a stub that always fails when CGO is disabled.
type Encoder struct{}

func NewEncoder(logger logging.Logger, provider ElementProvider) *Encoder {
	return &Encoder{}
}

func NewEncoderFactory(logger logging.Logger) capture.EncoderFactory {
	return func() capture.Encoder { return &Encoder{} }
}

func (e *Encoder) Prepare(outputFile string, settings capture.Settings) error {
	return ErrCGORequired
}

func (e *Encoder) BindSource(fd int, nodeID uint32) error { return ErrCGORequired }
func (e *Encoder) Start() error                          { return ErrCGORequired }
func (e *Encoder) Pause() error                          { return ErrCGORequired }
func (e *Encoder) Resume() error                         { return ErrCGORequired }
func (e *Encoder) Stop() error                           { return nil }
func (e *Encoder) Release() error                        { return nil }
