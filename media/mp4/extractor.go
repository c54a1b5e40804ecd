// Package mp4 implements media.Extractor and media.Muxer for ISO BMFF files on top of mp4ff.
package mp4

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/yeti47/screenrec/media"
)

// sample is one entry of a track in decode order. Times are in track timescale ticks.
type sample struct {
	decodeTime uint64
	cto        int32
	dur        uint32
	size       uint32
	flags      uint32
	offset     int64 // absolute file offset of the payload
}

func (s sample) presentationTime() int64 {
	return int64(s.decodeTime) + int64(s.cto)
}

// sampleIterator walks the samples of one track in decode order.
type sampleIterator interface {
	reset()
	next() (sample, bool)
}

type track struct {
	format media.TrackFormat
	newIt  func() sampleIterator
}

// Extractor reads one selected track of an MP4 file.
// Sample tables are parsed when opened; payloads are read from disk on demand.
type Extractor struct {
	file   *os.File
	tracks []track

	selected int
	it       sampleIterator
	current  sample
	valid    bool
}

// Open parses the file at path. It satisfies media.ExtractorOpener.
func Open(path string) (media.Extractor, error) {
	return OpenExtractor(path)
}

// OpenExtractor parses the file at path and returns a concrete *Extractor.
func OpenExtractor(path string) (*Extractor, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	e := &Extractor{file: file, selected: -1}
	if err := e.parse(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return e, nil
}

func (e *Extractor) parse() error {
	parsed, err := mp4.DecodeFile(e.file, mp4.WithDecodeMode(mp4.DecModeLazyMdat))
	if err != nil {
		return err
	}

	if parsed.IsFragmented() {
		return e.parseFragmented(parsed)
	}

	return e.parseProgressive(parsed)
}

func movieBox(f *mp4.File) *mp4.MoovBox {
	if f.Moov != nil {
		return f.Moov
	}
	if f.Init != nil {
		return f.Init.Moov
	}
	return nil
}

func (e *Extractor) parseProgressive(f *mp4.File) error {
	moov := movieBox(f)
	if moov == nil {
		return errors.New("no moov box")
	}

	for _, trak := range moov.Traks {
		format, err := trackFormat(trak)
		if err != nil {
			return err
		}

		stbl := trak.Mdia.Minf.Stbl
		if stbl.Stsz != nil {
			for i := uint32(0); i < stbl.Stsz.SampleNumber; i++ {
				if size := int(sampleSizeOf(stbl.Stsz, i+1)); size > format.MaxSampleSize {
					format.MaxSampleSize = size
				}
			}
		}

		e.tracks = append(e.tracks, track{
			format: format,
			newIt: func() sampleIterator {
				return newTableIterator(stbl)
			},
		})
	}
	return nil
}

func (e *Extractor) parseFragmented(f *mp4.File) error {
	moov := movieBox(f)
	if moov == nil {
		return errors.New("no moov box")
	}

	indexByID := make(map[uint32]int)
	perTrack := make([][]sample, len(moov.Traks))
	for i, trak := range moov.Traks {
		indexByID[trak.Tkhd.TrackID] = i
	}

	for _, seg := range f.Segments {
		for _, frag := range seg.Fragments {
			if len(frag.Moof.Trafs) != 1 {
				return fmt.Errorf("fragments with %d track runs are not supported", len(frag.Moof.Trafs))
			}
			trackID := frag.Moof.Traf.Tfhd.TrackID
			idx, ok := indexByID[trackID]
			if !ok {
				return fmt.Errorf("fragment references unknown track %d", trackID)
			}

			perTrack[idx] = append(perTrack[idx], fragmentSamples(frag.Moof, trexFor(moov, trackID))...)
		}
	}

	for i, trak := range moov.Traks {
		format, err := trackFormat(trak)
		if err != nil {
			return err
		}
		samples := perTrack[i]
		for _, s := range samples {
			if int(s.size) > format.MaxSampleSize {
				format.MaxSampleSize = int(s.size)
			}
		}
		e.tracks = append(e.tracks, track{
			format: format,
			newIt: func() sampleIterator {
				return &sliceIterator{samples: samples}
			},
		})
	}
	return nil
}

// fragmentSamples lists the samples of the first traf of moof with absolute payload offsets.
// Offsets follow ISO/IEC 14496-12 8.8.7.1: the base is the moof start unless tfhd carries
// an explicit base data offset, and a trun without a data offset continues after the previous one.
func fragmentSamples(moof *mp4.MoofBox, trex *mp4.TrexBox) []sample {
	traf := moof.Traf
	tfhd := traf.Tfhd

	var baseTime uint64
	if traf.Tfdt != nil {
		baseTime = traf.Tfdt.BaseMediaDecodeTime()
	}
	base := int64(moof.StartPos)
	if tfhd.HasBaseDataOffset() {
		base = int64(tfhd.BaseDataOffset)
	}

	var samples []sample
	next := base
	for _, trun := range traf.Truns {
		trun.AddSampleDefaultValues(tfhd, trex)
		if trun.HasDataOffset() {
			next = base + int64(trun.DataOffset)
		}
		for _, s := range trun.GetSamples() {
			samples = append(samples, sample{
				decodeTime: baseTime,
				cto:        s.CompositionTimeOffset,
				dur:        s.Dur,
				size:       s.Size,
				flags:      s.Flags,
				offset:     next,
			})
			baseTime += uint64(s.Dur)
			next += int64(s.Size)
		}
	}
	return samples
}

func trexFor(moov *mp4.MoovBox, trackID uint32) *mp4.TrexBox {
	if moov.Mvex == nil {
		return nil
	}
	for _, trex := range moov.Mvex.Trexs {
		if trex.TrackID == trackID {
			return trex
		}
	}
	return moov.Mvex.Trex
}

func trackFormat(trak *mp4.TrakBox) (media.TrackFormat, error) {
	if trak.Mdia == nil || trak.Mdia.Mdhd == nil || trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil {
		return media.TrackFormat{}, fmt.Errorf("track %d is missing media boxes", trak.Tkhd.TrackID)
	}

	format := media.TrackFormat{
		Kind:      media.KindOther,
		Timescale: trak.Mdia.Mdhd.Timescale,
		Language:  trak.Mdia.Mdhd.GetLanguage(),
	}
	if trak.Mdia.Hdlr != nil {
		switch media.Kind(trak.Mdia.Hdlr.HandlerType) {
		case media.KindVideo:
			format.Kind = media.KindVideo
		case media.KindAudio:
			format.Kind = media.KindAudio
		}
	}
	if format.Timescale == 0 {
		return media.TrackFormat{}, fmt.Errorf("track %d has zero timescale", trak.Tkhd.TrackID)
	}

	format.Width = int(uint32(trak.Tkhd.Width) >> 16)
	format.Height = int(uint32(trak.Tkhd.Height) >> 16)

	if stsd := trak.Mdia.Minf.Stbl.Stsd; stsd != nil && len(stsd.Children) > 0 {
		entry := stsd.Children[0]
		format.Codec = entry.Type()
		format.SampleEntry = entry
		if vse, ok := entry.(*mp4.VisualSampleEntryBox); ok {
			format.Width = int(vse.Width)
			format.Height = int(vse.Height)
		}
	}
	return format, nil
}

func (e *Extractor) TrackCount() int {
	return len(e.tracks)
}

func (e *Extractor) TrackFormat(index int) (media.TrackFormat, error) {
	if index < 0 || index >= len(e.tracks) {
		return media.TrackFormat{}, fmt.Errorf("%w: %d", media.ErrTrackIndex, index)
	}
	return e.tracks[index].format, nil
}

// SelectTrack makes index the track read by the sample accessors and positions at its first sample.
func (e *Extractor) SelectTrack(index int) error {
	if index < 0 || index >= len(e.tracks) {
		return fmt.Errorf("%w: %d", media.ErrTrackIndex, index)
	}
	e.selected = index
	e.it = e.tracks[index].newIt()
	e.current, e.valid = e.it.next()
	return nil
}

// SeekTo positions the selected track on a sync sample chosen by mode.
// Without any sync sample at or before timeUs, the first sync sample is used.
func (e *Extractor) SeekTo(timeUs int64, mode media.SeekMode) error {
	if e.it == nil {
		return media.ErrNoTrackSelected
	}
	timescale := e.tracks[e.selected].format.Timescale

	e.it.reset()
	var (
		target    = -1
		firstSync = -1
		before    = -1
		after     = -1
		beforeUs  int64
		afterUs   int64
	)
	for i := 0; ; i++ {
		s, ok := e.it.next()
		if !ok {
			break
		}
		if !media.SampleFlags(s.flags).IsSync() {
			continue
		}
		ptsUs := ticksToUs(s.presentationTime(), timescale)
		if firstSync < 0 {
			firstSync = i
		}
		if ptsUs <= timeUs {
			before, beforeUs = i, ptsUs
			continue
		}
		after, afterUs = i, ptsUs
		break
	}

	switch {
	case mode == media.SeekClosestSync && before >= 0 && after >= 0:
		target = before
		if afterUs-timeUs < timeUs-beforeUs {
			target = after
		}
	case before >= 0:
		target = before
	case firstSync >= 0:
		target = firstSync
	default:
		target = 0
	}

	e.it.reset()
	e.current, e.valid = e.it.next()
	for i := 0; i < target && e.valid; i++ {
		e.current, e.valid = e.it.next()
	}
	return nil
}

func (e *Extractor) SampleTime() int64 {
	if !e.valid {
		return -1
	}
	return ticksToUs(e.current.presentationTime(), e.tracks[e.selected].format.Timescale)
}

func (e *Extractor) SampleFlags() media.SampleFlags {
	if !e.valid {
		return 0
	}
	return media.SampleFlags(e.current.flags)
}

func (e *Extractor) SampleCompositionOffset() int64 {
	if !e.valid {
		return 0
	}
	return ticksToUs(int64(e.current.cto), e.tracks[e.selected].format.Timescale)
}

func (e *Extractor) ReadSampleData(buf []byte) (int, error) {
	if e.it == nil {
		return 0, media.ErrNoTrackSelected
	}
	if !e.valid {
		return 0, io.EOF
	}

	size := int(e.current.size)
	if size > len(buf) {
		return 0, fmt.Errorf("%w: sample of %d bytes, buffer of %d", media.ErrBufferTooSmall, size, len(buf))
	}
	if _, err := e.file.ReadAt(buf[:size], e.current.offset); err != nil {
		return 0, fmt.Errorf("failed to read sample at offset %d: %w", e.current.offset, err)
	}
	return size, nil
}

func (e *Extractor) Advance() bool {
	if !e.valid {
		return false
	}
	e.current, e.valid = e.it.next()
	return e.valid
}

func (e *Extractor) Close() error {
	if e.file == nil {
		return nil
	}
	err := e.file.Close()
	e.file = nil
	return err
}

// ticksToUs converts track ticks to microseconds, rounding to nearest.
func ticksToUs(ticks int64, timescale uint32) int64 {
	ts := int64(timescale)
	if ticks < 0 {
		return -((-ticks*1_000_000 + ts/2) / ts)
	}
	return (ticks*1_000_000 + ts/2) / ts
}

// usToTicks converts microseconds to track ticks, rounding to nearest.
func usToTicks(us int64, timescale uint32) int64 {
	ts := int64(timescale)
	if us < 0 {
		return -((-us*ts + 500_000) / 1_000_000)
	}
	return (us*ts + 500_000) / 1_000_000
}

type sliceIterator struct {
	samples []sample
	pos     int
}

func (it *sliceIterator) reset() {
	it.pos = 0
}

func (it *sliceIterator) next() (sample, bool) {
	if it.pos >= len(it.samples) {
		return sample{}, false
	}
	s := it.samples[it.pos]
	it.pos++
	return s, true
}
