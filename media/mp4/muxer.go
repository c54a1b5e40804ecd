package mp4

import (
	"bufio"
	"fmt"
	"os"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/yeti47/screenrec/media"
)

const (
	maxSamplesPerFragment = 120
	maxBytesPerFragment   = 8 << 20
)

type muxTrack struct {
	format  media.TrackFormat
	trackID uint32

	shift   int64 // ticks added to every decode time so the first one is not negative
	pending *mp4.FullSample
	lastDur uint32

	buffered      []mp4.FullSample
	bufferedBytes int
}

// Muxer writes a fragmented MP4: an init segment (ftyp+moov) followed by
// one moof+mdat pair per run of samples of a single track.
// Sample entries and sample flags are copied unchanged from the TrackFormat and SampleInfo.
type Muxer struct {
	file    *os.File
	w       *bufio.Writer
	tracks  []*muxTrack
	seqNr   uint32
	started bool
	stopped bool
}

// Create creates the file at path. It satisfies media.MuxerCreator.
func Create(path string) (media.Muxer, error) {
	return NewMuxer(path)
}

// NewMuxer creates (truncating) the file at path.
func NewMuxer(path string) (*Muxer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Muxer{file: file, w: bufio.NewWriter(file), seqNr: 1}, nil
}

// AddTrack registers a track and returns its index in the output.
func (m *Muxer) AddTrack(format media.TrackFormat) (int, error) {
	if m.started {
		return -1, fmt.Errorf("%w: tracks must be added before start", media.ErrMuxerState)
	}
	if !format.Kind.IsAudioVisual() {
		return -1, fmt.Errorf("unsupported track kind %q", format.Kind)
	}
	if format.Timescale == 0 {
		return -1, fmt.Errorf("track %s has zero timescale", format)
	}
	if _, ok := format.SampleEntry.(mp4.Box); !ok {
		return -1, fmt.Errorf("track %s has no mp4 sample entry", format)
	}
	m.tracks = append(m.tracks, &muxTrack{format: format})
	return len(m.tracks) - 1, nil
}

// Start writes the init segment.
func (m *Muxer) Start() error {
	if m.started {
		return fmt.Errorf("%w: already started", media.ErrMuxerState)
	}
	if len(m.tracks) == 0 {
		return fmt.Errorf("%w: no tracks", media.ErrMuxerState)
	}

	init := mp4.CreateEmptyInit()
	for i, t := range m.tracks {
		mediaType := "video"
		if t.format.Kind == media.KindAudio {
			mediaType = "audio"
		}
		lang := t.format.Language
		if lang == "" {
			lang = "und"
		}
		init.AddEmptyTrack(t.format.Timescale, mediaType, lang)

		trak := init.Moov.Traks[i]
		trak.Mdia.Minf.Stbl.Stsd.AddChild(t.format.SampleEntry.(mp4.Box))
		if t.format.Kind == media.KindVideo {
			trak.Tkhd.Width = mp4.Fixed32(uint32(t.format.Width) << 16)
			trak.Tkhd.Height = mp4.Fixed32(uint32(t.format.Height) << 16)
		}
		t.trackID = trak.Tkhd.TrackID
	}

	if err := init.Encode(m.w); err != nil {
		return fmt.Errorf("failed to encode init segment: %w", err)
	}
	m.started = true
	return nil
}

// WriteSampleData appends one sample. data is copied, so callers may reuse the buffer.
func (m *Muxer) WriteSampleData(trackIndex int, data []byte, info media.SampleInfo) error {
	if !m.started || m.stopped {
		return fmt.Errorf("%w: write outside of start/stop", media.ErrMuxerState)
	}
	if trackIndex < 0 || trackIndex >= len(m.tracks) {
		return fmt.Errorf("%w: %d", media.ErrTrackIndex, trackIndex)
	}
	if info.Size > len(data) {
		return fmt.Errorf("sample size %d exceeds data length %d", info.Size, len(data))
	}

	t := m.tracks[trackIndex]
	ts := t.format.Timescale
	pts := usToTicks(info.PresentationTimeUs, ts)
	dts := usToTicks(info.PresentationTimeUs-info.CompositionOffsetUs, ts)

	if t.pending == nil && t.buffered == nil && dts < 0 {
		t.shift = -dts
	}
	dts += t.shift
	pts += t.shift
	if dts < 0 {
		dts = 0
	}

	if t.pending != nil {
		if uint64(dts) < t.pending.DecodeTime {
			dts = int64(t.pending.DecodeTime)
		}
		t.pending.Dur = uint32(uint64(dts) - t.pending.DecodeTime)
		t.lastDur = t.pending.Dur
		if err := m.push(t, *t.pending, info.Flags.IsSync()); err != nil {
			return err
		}
	}

	payload := make([]byte, info.Size)
	copy(payload, data[:info.Size])
	t.pending = &mp4.FullSample{
		Sample: mp4.Sample{
			Flags:                 uint32(info.Flags),
			Size:                  uint32(info.Size),
			CompositionTimeOffset: int32(pts - dts),
		},
		DecodeTime: uint64(dts),
		Data:       payload,
	}
	return nil
}

// push buffers a finished sample, flushing first when nextIsSync would start a new GOP
// or the fragment is full.
func (m *Muxer) push(t *muxTrack, s mp4.FullSample, nextIsSync bool) error {
	t.buffered = append(t.buffered, s)
	t.bufferedBytes += len(s.Data)

	if (nextIsSync && t.format.Kind == media.KindVideo) ||
		len(t.buffered) >= maxSamplesPerFragment ||
		t.bufferedBytes >= maxBytesPerFragment {
		return m.flush(t)
	}
	return nil
}

func (m *Muxer) flush(t *muxTrack) error {
	if len(t.buffered) == 0 {
		return nil
	}

	frag, err := mp4.CreateFragment(m.seqNr, t.trackID)
	if err != nil {
		return fmt.Errorf("failed to create fragment: %w", err)
	}
	for _, s := range t.buffered {
		frag.AddFullSample(s)
	}
	if err := frag.Encode(m.w); err != nil {
		return fmt.Errorf("failed to encode fragment: %w", err)
	}

	m.seqNr++
	t.buffered = nil
	t.bufferedBytes = 0
	return nil
}

// Stop writes the remaining samples. The last sample of each track reuses the previous duration.
func (m *Muxer) Stop() error {
	if !m.started {
		return fmt.Errorf("%w: not started", media.ErrMuxerState)
	}
	if m.stopped {
		return nil
	}
	m.stopped = true

	for _, t := range m.tracks {
		if t.pending != nil {
			t.pending.Dur = t.lastDur
			t.buffered = append(t.buffered, *t.pending)
			t.pending = nil
		}
		if err := m.flush(t); err != nil {
			return err
		}
	}

	if err := m.w.Flush(); err != nil {
		return err
	}
	return m.file.Sync()
}

// Close releases the file. Samples not yet flushed by Stop are discarded.
func (m *Muxer) Close() error {
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil
	return err
}
