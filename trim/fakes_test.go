package trim

import (
	"errors"
	"fmt"
	"sync"

	"github.com/yeti47/screenrec/media"
)

type fakeSample struct {
	timeUs int64
	flags  media.SampleFlags
	data   []byte
}

type fakeTrack struct {
	format  media.TrackFormat
	samples []fakeSample
}

// recorder collects the resource lifecycle events of a trim in order.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fakeExtractor struct {
	id        int
	tracks    []fakeTrack
	log       *recorder
	selected  int
	pos       int
	failAtPos int // ReadSampleData fails at this position when >= 0
}

func (e *fakeExtractor) TrackCount() int { return len(e.tracks) }

func (e *fakeExtractor) TrackFormat(i int) (media.TrackFormat, error) {
	if i < 0 || i >= len(e.tracks) {
		return media.TrackFormat{}, media.ErrTrackIndex
	}
	return e.tracks[i].format, nil
}

func (e *fakeExtractor) SelectTrack(i int) error {
	e.selected = i
	e.pos = 0
	e.log.add("reader%d.select(%d)", e.id, i)
	return nil
}

func (e *fakeExtractor) samples() []fakeSample {
	return e.tracks[e.selected].samples
}

func (e *fakeExtractor) SeekTo(timeUs int64, mode media.SeekMode) error {
	target := -1
	for i, s := range e.samples() {
		if s.flags.IsSync() && s.timeUs <= timeUs {
			target = i
		}
	}
	if target < 0 {
		target = 0
	}
	e.pos = target
	return nil
}

func (e *fakeExtractor) SampleTime() int64 {
	if e.pos >= len(e.samples()) {
		return -1
	}
	return e.samples()[e.pos].timeUs
}

func (e *fakeExtractor) SampleFlags() media.SampleFlags {
	return e.samples()[e.pos].flags
}

func (e *fakeExtractor) SampleCompositionOffset() int64 { return 0 }

func (e *fakeExtractor) ReadSampleData(buf []byte) (int, error) {
	if e.failAtPos >= 0 && e.pos == e.failAtPos {
		return 0, errors.New("disk error")
	}
	return copy(buf, e.samples()[e.pos].data), nil
}

func (e *fakeExtractor) Advance() bool {
	e.pos++
	return e.pos < len(e.samples())
}

func (e *fakeExtractor) Close() error {
	e.log.add("reader%d.close", e.id)
	return nil
}

type written struct {
	track int
	data  []byte
	info  media.SampleInfo
}

type fakeMuxer struct {
	log     *recorder
	tracks  []media.TrackFormat
	started bool
	samples []written
	stopErr error
}

func (m *fakeMuxer) AddTrack(f media.TrackFormat) (int, error) {
	if m.started {
		return -1, media.ErrMuxerState
	}
	m.tracks = append(m.tracks, f)
	m.log.add("muxer.add(%s)", f.Kind)
	return len(m.tracks) - 1, nil
}

func (m *fakeMuxer) Start() error {
	m.started = true
	m.log.add("muxer.start")
	return nil
}

func (m *fakeMuxer) WriteSampleData(track int, data []byte, info media.SampleInfo) error {
	if !m.started {
		return media.ErrMuxerState
	}
	m.samples = append(m.samples, written{track: track, data: append([]byte(nil), data...), info: info})
	return nil
}

func (m *fakeMuxer) Stop() error {
	m.log.add("muxer.stop")
	return m.stopErr
}

func (m *fakeMuxer) Close() error {
	m.log.add("muxer.close")
	return nil
}

// fakeMedia hands out a fresh extractor per open, all over the same tracks.
type fakeMedia struct {
	tracks    []fakeTrack
	log       recorder
	opens     int
	muxer     *fakeMuxer
	failAtPos int
	stopErr   error
}

func newFakeMedia(tracks ...fakeTrack) *fakeMedia {
	return &fakeMedia{tracks: tracks, failAtPos: -1}
}

func (f *fakeMedia) open(path string) (media.Extractor, error) {
	ex := &fakeExtractor{id: f.opens, tracks: f.tracks, log: &f.log, failAtPos: f.failAtPos}
	f.opens++
	f.log.add("open(%d)", ex.id)
	return ex, nil
}

func (f *fakeMedia) create(path string) (media.Muxer, error) {
	f.muxer = &fakeMuxer{log: &f.log, stopErr: f.stopErr}
	return f.muxer, nil
}

// videoTrack has a sample every stepUs with a keyframe every gop samples.
func videoTrack(durationUs, stepUs int64, gop int) fakeTrack {
	track := fakeTrack{format: media.TrackFormat{Kind: media.KindVideo, Codec: "avc1", Timescale: 90000}}
	for i := 0; int64(i)*stepUs < durationUs; i++ {
		flags := media.NonSyncSampleFlags
		if i%gop == 0 {
			flags = media.SyncSampleFlags
		}
		track.samples = append(track.samples, fakeSample{timeUs: int64(i) * stepUs, flags: flags, data: []byte{byte(i)}})
	}
	return track
}

func audioTrack(durationUs, stepUs int64) fakeTrack {
	track := fakeTrack{format: media.TrackFormat{Kind: media.KindAudio, Codec: "mp4a", Timescale: 48000}}
	for i := 0; int64(i)*stepUs < durationUs; i++ {
		track.samples = append(track.samples, fakeSample{timeUs: int64(i) * stepUs, flags: media.SyncSampleFlags, data: []byte{0xA0, byte(i)}})
	}
	return track
}

func otherTrack() fakeTrack {
	return fakeTrack{
		format:  media.TrackFormat{Kind: media.KindOther, Codec: "tx3g", Timescale: 1000},
		samples: []fakeSample{{timeUs: 0, flags: media.SyncSampleFlags, data: []byte("hello")}},
	}
}
