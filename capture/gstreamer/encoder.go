//go:build cgo

package gstreamer

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-gst/go-gst/gst"

	"github.com/yeti47/screenrec/capture"
	"github.com/yeti47/screenrec/ccc/logging"
)

const eosTimeout = 5 * time.Second

var gstInitOnce sync.Once

// InitGStreamer initializes the GStreamer library. Safe to call multiple times.
func InitGStreamer() {
	gstInitOnce.Do(func() {
		gst.Init(nil)
	})
}

// NewRegistryProvider looks elements up in the GStreamer registry.
func NewRegistryProvider() *CachedElementProvider {
	InitGStreamer()
	return NewCachedElementProvider(func(name string) bool {
		return gst.Find(name) != nil
	})
}

// Encoder records a PipeWire stream into an MP4 file through a GStreamer pipeline.
// The pipeline is built once the source is bound, which the portal display does.
type Encoder struct {
	logger   logging.Logger
	provider ElementProvider

	mu           sync.Mutex
	outputFile   string
	settings     capture.Settings
	videoEncoder string
	audioEncoder string
	pipeline     *gst.Pipeline
	playing      bool
	paused       bool
}

// NewEncoder creates an encoder choosing elements from provider.
func NewEncoder(logger logging.Logger, provider ElementProvider) *Encoder {
	if logger == nil {
		logger = logging.NopLogger
	}
	return &Encoder{logger: logger, provider: provider}
}

// NewEncoderFactory returns a factory sharing one registry lookup cache.
func NewEncoderFactory(logger logging.Logger) capture.EncoderFactory {
	provider := NewRegistryProvider()
	var mu sync.Mutex
	return func() capture.Encoder {
		return NewEncoder(logger, lockedProvider{mu: &mu, provider: provider})
	}
}

type lockedProvider struct {
	mu       *sync.Mutex
	provider ElementProvider
}

func (p lockedProvider) IsElementAvailable(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.provider.IsElementAvailable(name)
}

func (e *Encoder) Prepare(outputFile string, settings capture.Settings) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if missing := MissingElements(e.provider, RequiredElements...); len(missing) > 0 {
		return fmt.Errorf("missing GStreamer elements: %v", missing)
	}

	videoEncoder, err := SelectVideoEncoder(e.provider, settings.VideoEncoder, e.logger)
	if err != nil {
		return err
	}

	audioEncoder := ""
	if settings.RecordAudio {
		if missing := MissingElements(e.provider, AudioElements...); len(missing) > 0 {
			e.logger.Warn("Recording without audio, missing GStreamer elements", "missing", missing)
		} else if audioEncoder, err = SelectAudioEncoder(e.provider); err != nil {
			e.logger.Warn("Recording without audio", "error", err)
			audioEncoder = ""
		}
	}

	e.outputFile = outputFile
	e.settings = settings
	e.videoEncoder = videoEncoder
	e.audioEncoder = audioEncoder
	e.logger.Debug("Encoder prepared", "file", outputFile, "video_encoder", videoEncoder, "audio_encoder", audioEncoder)
	return nil
}

// BindSource builds the pipeline reading PipeWire node nodeID over the remote fd.
func (e *Encoder) BindSource(fd int, nodeID uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.outputFile == "" {
		return fmt.Errorf("encoder is not prepared")
	}
	if e.pipeline != nil {
		return fmt.Errorf("encoder source already bound")
	}

	description, err := BuildPipeline(PipelineConfig{
		PipeWireFD:   fd,
		NodeID:       nodeID,
		OutputFile:   e.outputFile,
		VideoEncoder: e.videoEncoder,
		AudioEncoder: e.audioEncoder,
		Settings:     e.settings,
	})
	if err != nil {
		return err
	}

	InitGStreamer()
	pipeline, err := gst.NewPipelineFromString(description)
	if err != nil {
		return fmt.Errorf("failed to parse pipeline: %w", err)
	}
	e.pipeline = pipeline
	e.logger.Debug("Pipeline created", "pipeline", description)
	return nil
}

func (e *Encoder) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pipeline == nil {
		return fmt.Errorf("encoder has no source")
	}
	if err := e.pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("failed to set pipeline to playing: %w", err)
	}
	e.playing = true
	return nil
}

func (e *Encoder) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.playing {
		return fmt.Errorf("encoder is not running")
	}
	if err := e.pipeline.SetState(gst.StatePaused); err != nil {
		return fmt.Errorf("failed to pause pipeline: %w", err)
	}
	e.paused = true
	return nil
}

func (e *Encoder) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.playing {
		return fmt.Errorf("encoder is not running")
	}
	if err := e.pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("failed to resume pipeline: %w", err)
	}
	e.paused = false
	return nil
}

// Stop sends end-of-stream so the muxer can finalize the file, then shuts the pipeline down.
func (e *Encoder) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.playing {
		return nil
	}
	e.playing = false

	if e.paused {
		if err := e.pipeline.SetState(gst.StatePlaying); err != nil {
			e.logger.Warn("Failed to resume pipeline before end of stream", "error", err)
		}
		e.paused = false
	}

	var result error
	if !e.pipeline.SendEvent(gst.NewEOSEvent()) {
		result = fmt.Errorf("pipeline rejected end of stream")
	} else {
		result = e.waitForEOS()
	}

	if err := e.pipeline.SetState(gst.StateNull); err != nil && result == nil {
		result = fmt.Errorf("failed to stop pipeline: %w", err)
	}
	return result
}

func (e *Encoder) waitForEOS() error {
	bus := e.pipeline.GetPipelineBus()
	if bus == nil {
		return fmt.Errorf("pipeline has no bus")
	}

	deadline := time.Now().Add(eosTimeout)
	for time.Now().Before(deadline) {
		msg := bus.TimedPop(gst.ClockTime(100 * time.Millisecond))
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			return nil
		case gst.MessageError:
			if gerr := msg.ParseError(); gerr != nil {
				return fmt.Errorf("pipeline error: %s", gerr.Error())
			}
			return fmt.Errorf("pipeline error")
		case gst.MessageWarning:
			if gwarn := msg.ParseWarning(); gwarn != nil {
				e.logger.Warn("Pipeline warning", "warning", gwarn.Error())
			}
		}
	}
	return fmt.Errorf("timed out waiting for end of stream after %s", eosTimeout)
}

func (e *Encoder) Release() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pipeline == nil {
		return nil
	}
	err := e.pipeline.SetState(gst.StateNull)
	e.pipeline = nil
	e.playing = false
	e.paused = false
	return err
}
