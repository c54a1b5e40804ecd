// Package media defines the demux/mux contracts used by the trim pipeline.
//
// Timestamps are microseconds. Sample flags are ISO BMFF sample flags and are
// copied between containers without interpretation, except for the sync bit.
package media

import (
	"errors"
	"fmt"
)

// Kind classifies a track by its handler.
type Kind string

const (
	KindVideo Kind = "vide"
	KindAudio Kind = "soun"
	KindOther Kind = "other"
)

// IsAudioVisual reports whether tracks of this kind survive a trim.
func (k Kind) IsAudioVisual() bool {
	return k == KindVideo || k == KindAudio
}

// DefaultMaxSampleSize is used for sample buffers when a track does not report one.
const DefaultMaxSampleSize = 1 << 20

// TrackFormat describes one track of a container.
type TrackFormat struct {
	Kind      Kind
	Codec     string // sample entry type, e.g. avc1, mp4a
	Timescale uint32
	Language  string
	Width     int
	Height    int
	// MaxSampleSize is the largest sample in the track, 0 if unknown.
	MaxSampleSize int
	// SampleEntry is the container specific codec configuration, passed to the muxer unchanged.
	SampleEntry any
}

// BufferSize returns the read buffer size needed for samples of this track.
func (f TrackFormat) BufferSize() int {
	if f.MaxSampleSize > 0 {
		return f.MaxSampleSize
	}
	return DefaultMaxSampleSize
}

func (f TrackFormat) String() string {
	if f.Kind == KindVideo {
		return fmt.Sprintf("%s %s %dx%d", f.Kind, f.Codec, f.Width, f.Height)
	}
	return fmt.Sprintf("%s %s", f.Kind, f.Codec)
}

// SampleFlags are raw ISO BMFF sample flags (ISO/IEC 14496-12 8.8.3.1).
type SampleFlags uint32

const (
	sampleIsNonSync = 0x00010000

	// SyncSampleFlags marks an independently decodable sample.
	SyncSampleFlags SampleFlags = 0x02000000
	// NonSyncSampleFlags marks a sample that depends on others.
	NonSyncSampleFlags SampleFlags = 0x01010000
)

// IsSync reports whether the sample can be decoded without earlier samples.
func (f SampleFlags) IsSync() bool {
	return f&sampleIsNonSync == 0
}

// SampleInfo accompanies one sample handed to a Muxer.
type SampleInfo struct {
	// PresentationTimeUs is the presentation timestamp.
	PresentationTimeUs int64
	// CompositionOffsetUs is presentation minus decode time (non-zero with B-frames).
	CompositionOffsetUs int64
	Flags               SampleFlags
	Size                int
}

// SeekMode selects where SeekTo lands relative to the requested time.
type SeekMode int

const (
	// SeekPreviousSync lands on the last sync sample at or before the requested time.
	SeekPreviousSync SeekMode = iota
	// SeekClosestSync lands on the sync sample nearest to the requested time.
	SeekClosestSync
)

var (
	// ErrNoTrackSelected is returned by sample accessors before SelectTrack.
	ErrNoTrackSelected = errors.New("no track selected")
	// ErrTrackIndex is returned for a track index outside the container.
	ErrTrackIndex = errors.New("track index out of range")
	// ErrBufferTooSmall is returned when a sample does not fit the read buffer.
	ErrBufferTooSmall = errors.New("sample does not fit buffer")
	// ErrMuxerState is returned for muxer calls made in the wrong order.
	ErrMuxerState = errors.New("invalid muxer state")
)

// Extractor reads samples of one selected track at a time, in decode order.
type Extractor interface {
	TrackCount() int
	TrackFormat(index int) (TrackFormat, error)
	SelectTrack(index int) error
	SeekTo(timeUs int64, mode SeekMode) error
	// SampleTime returns the presentation time of the current sample, or -1 at end of stream.
	SampleTime() int64
	SampleFlags() SampleFlags
	// SampleCompositionOffset returns presentation minus decode time of the current sample.
	SampleCompositionOffset() int64
	// ReadSampleData copies the current sample into buf and returns its size.
	ReadSampleData(buf []byte) (int, error)
	// Advance moves to the next sample and reports whether one exists.
	Advance() bool
	Close() error
}

// Muxer writes samples into a new container. Tracks must all be added before Start.
type Muxer interface {
	AddTrack(format TrackFormat) (int, error)
	Start() error
	WriteSampleData(track int, data []byte, info SampleInfo) error
	Stop() error
	Close() error
}

// ExtractorOpener opens a fresh Extractor on a file.
type ExtractorOpener func(path string) (Extractor, error)

// MuxerCreator creates a Muxer writing to a new file at path.
type MuxerCreator func(path string) (Muxer, error)
