package mp4

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeti47/screenrec/media"
)

// baseline profile SPS for 1280x720 and a matching PPS
var (
	testSPS = []byte{0x67, 0x42, 0xc0, 0x1f, 0xda, 0x01, 0x40, 0x16, 0xe4}
	testPPS = []byte{0x68, 0xce, 0x3c, 0x80}
)

const (
	testTimescale = 90000
	testFrameDur  = 3600 // 25 fps, 40ms
	testFrames    = 30
	testGOP       = 10
)

func videoFormat(t *testing.T) media.TrackFormat {
	t.Helper()
	avcC, err := mp4.CreateAvcC([][]byte{testSPS}, [][]byte{testPPS}, true)
	require.NoError(t, err)
	return media.TrackFormat{
		Kind:        media.KindVideo,
		Codec:       "avc1",
		Timescale:   testTimescale,
		Language:    "und",
		Width:       1280,
		Height:      720,
		SampleEntry: mp4.CreateVisualSampleEntryBox("avc1", 1280, 720, avcC),
	}
}

func payload(i int) []byte {
	return bytes.Repeat([]byte{byte(i)}, 10+i)
}

func writeTestFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.mp4")

	muxer, err := NewMuxer(path)
	require.NoError(t, err)

	idx, err := muxer.AddTrack(videoFormat(t))
	require.NoError(t, err)
	require.NoError(t, muxer.Start())

	for i := 0; i < testFrames; i++ {
		flags := media.NonSyncSampleFlags
		if i%testGOP == 0 {
			flags = media.SyncSampleFlags
		}
		data := payload(i)
		require.NoError(t, muxer.WriteSampleData(idx, data, media.SampleInfo{
			PresentationTimeUs: int64(i) * 40000,
			Flags:              flags,
			Size:               len(data),
		}))
	}
	require.NoError(t, muxer.Stop())
	require.NoError(t, muxer.Close())
	return path
}

func TestMuxerOutputRoundTrip(t *testing.T) {
	path := writeTestFile(t)

	ok, err := IsISOBMFFFile(path)
	require.NoError(t, err)
	assert.True(t, ok)

	ex, err := OpenExtractor(path)
	require.NoError(t, err)
	defer ex.Close()

	require.Equal(t, 1, ex.TrackCount())
	format, err := ex.TrackFormat(0)
	require.NoError(t, err)
	assert.Equal(t, media.KindVideo, format.Kind)
	assert.Equal(t, "avc1", format.Codec)
	assert.EqualValues(t, testTimescale, format.Timescale)
	assert.Equal(t, 1280, format.Width)
	assert.Equal(t, 720, format.Height)
	assert.Equal(t, 10+testFrames-1, format.MaxSampleSize)

	require.NoError(t, ex.SelectTrack(0))
	buf := make([]byte, format.BufferSize())
	for i := 0; i < testFrames; i++ {
		require.Equal(t, int64(i)*40000, ex.SampleTime(), "sample %d", i)
		assert.Equal(t, i%testGOP == 0, ex.SampleFlags().IsSync(), "sample %d", i)

		n, err := ex.ReadSampleData(buf)
		require.NoError(t, err)
		assert.Equal(t, payload(i), buf[:n])

		more := ex.Advance()
		assert.Equal(t, i < testFrames-1, more)
	}
	assert.Equal(t, int64(-1), ex.SampleTime())
}

func TestExtractorSeek(t *testing.T) {
	path := writeTestFile(t)
	ex, err := OpenExtractor(path)
	require.NoError(t, err)
	defer ex.Close()

	assert.ErrorIs(t, ex.SeekTo(0, media.SeekPreviousSync), media.ErrNoTrackSelected)
	require.NoError(t, ex.SelectTrack(0))

	tests := []struct {
		name   string
		timeUs int64
		mode   media.SeekMode
		want   int64
	}{
		{"before first keyframe", -1000, media.SeekPreviousSync, 0},
		{"inside first gop", 150000, media.SeekPreviousSync, 0},
		{"exactly on keyframe", 400000, media.SeekPreviousSync, 400000},
		{"inside second gop", 450000, media.SeekPreviousSync, 400000},
		{"past the end", 10_000_000, media.SeekPreviousSync, 800000},
		{"closest picks next keyframe", 390000, media.SeekClosestSync, 400000},
		{"closest picks previous keyframe", 410000, media.SeekClosestSync, 400000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, ex.SeekTo(tt.timeUs, tt.mode))
			assert.Equal(t, tt.want, ex.SampleTime())
			assert.True(t, ex.SampleFlags().IsSync())
		})
	}
}

func TestReadSampleDataBufferTooSmall(t *testing.T) {
	path := writeTestFile(t)
	ex, err := OpenExtractor(path)
	require.NoError(t, err)
	defer ex.Close()

	require.NoError(t, ex.SelectTrack(0))
	_, err = ex.ReadSampleData(make([]byte, 2))
	assert.ErrorIs(t, err, media.ErrBufferTooSmall)
}

func TestMuxerStateErrors(t *testing.T) {
	muxer, err := NewMuxer(filepath.Join(t.TempDir(), "out.mp4"))
	require.NoError(t, err)
	defer muxer.Close()

	assert.ErrorIs(t, muxer.WriteSampleData(0, []byte{1}, media.SampleInfo{Size: 1}), media.ErrMuxerState)
	assert.ErrorIs(t, muxer.Start(), media.ErrMuxerState)
	assert.ErrorIs(t, muxer.Stop(), media.ErrMuxerState)

	_, err = muxer.AddTrack(media.TrackFormat{Kind: media.KindOther, Timescale: 1000})
	assert.Error(t, err)

	_, err = muxer.AddTrack(videoFormat(t))
	require.NoError(t, err)
	require.NoError(t, muxer.Start())

	_, err = muxer.AddTrack(videoFormat(t))
	assert.ErrorIs(t, err, media.ErrMuxerState)
}

func TestTimeConversion(t *testing.T) {
	assert.Equal(t, int64(40000), ticksToUs(3600, 90000))
	assert.Equal(t, int64(3600), usToTicks(40000, 90000))
	assert.Equal(t, int64(-40000), ticksToUs(-3600, 90000))
	// 48 kHz audio frame of 1024 samples
	assert.Equal(t, int64(21333), ticksToUs(1024, 48000))
	assert.Equal(t, int64(1024), usToTicks(21333, 48000))
}

func TestIsISOBMFF(t *testing.T) {
	ok, err := IsISOBMFF([]byte("\x00\x00\x00\x18ftypisom\x00\x00\x02\x00"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = IsISOBMFF([]byte("RIFF\x00\x00\x00\x00AVI \x00"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = IsISOBMFF([]byte("short"))
	assert.Error(t, err)
}

// writeProgressiveFile writes ftyp+moov+mdat with 10 samples in chunks of 4, 3 and 3
// and sync samples 1 and 6.
func writeProgressiveFile(t *testing.T) string {
	t.Helper()
	const frames = 10

	avcC, err := mp4.CreateAvcC([][]byte{testSPS}, [][]byte{testPPS}, true)
	require.NoError(t, err)

	moov := mp4.NewMoovBox()
	moov.AddChild(mp4.CreateMvhd())
	trak := mp4.CreateEmptyTrak(1, testTimescale, "video", "und")
	moov.AddChild(trak)

	stbl := trak.Mdia.Minf.Stbl
	stbl.Stsd.AddChild(mp4.CreateVisualSampleEntryBox("avc1", 1280, 720, avcC))
	stbl.Stts.SampleCount = []uint32{frames}
	stbl.Stts.SampleTimeDelta = []uint32{testFrameDur}
	require.NoError(t, stbl.Stsc.AddEntry(1, 4, 1))
	require.NoError(t, stbl.Stsc.AddEntry(2, 3, 1))
	stbl.AddChild(&mp4.StssBox{SampleNumber: []uint32{1, 6}})

	mdat := &mp4.MdatBox{}
	for i := 0; i < frames; i++ {
		data := payload(i)
		stbl.Stsz.SampleSize = append(stbl.Stsz.SampleSize, uint32(len(data)))
		mdat.AddSampleData(data)
	}
	stbl.Stsz.SampleNumber = frames
	stbl.Stco.ChunkOffset = make([]uint32, 3)

	ftyp := mp4.NewFtyp("isom", 0x200, []string{"isom", "iso2", "avc1", "mp41"})
	offset := uint32(ftyp.Size() + moov.Size() + mdat.HeaderSize())
	first := 0
	for chunk, end := range []int{4, 7, frames} {
		stbl.Stco.ChunkOffset[chunk] = offset
		for i := first; i < end; i++ {
			offset += uint32(len(payload(i)))
		}
		first = end
	}

	path := filepath.Join(t.TempDir(), "progressive.mp4")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, ftyp.Encode(f))
	require.NoError(t, moov.Encode(f))
	require.NoError(t, mdat.Encode(f))
	return path
}

func TestExtractorProgressiveSampleTables(t *testing.T) {
	path := writeProgressiveFile(t)

	ex, err := OpenExtractor(path)
	require.NoError(t, err)
	defer ex.Close()

	require.Equal(t, 1, ex.TrackCount())
	format, err := ex.TrackFormat(0)
	require.NoError(t, err)
	assert.Equal(t, media.KindVideo, format.Kind)
	assert.Equal(t, 1280, format.Width)
	assert.Equal(t, 19, format.MaxSampleSize)

	require.NoError(t, ex.SelectTrack(0))
	buf := make([]byte, format.BufferSize())
	count := 0
	for ex.SampleTime() >= 0 {
		assert.Equal(t, int64(count)*40000, ex.SampleTime(), "sample %d", count)
		assert.Equal(t, count == 0 || count == 5, ex.SampleFlags().IsSync(), "sample %d", count)

		n, err := ex.ReadSampleData(buf)
		require.NoError(t, err)
		assert.Equal(t, payload(count), buf[:n], "sample %d", count)

		count++
		if !ex.Advance() {
			break
		}
	}
	assert.Equal(t, 10, count)

	require.NoError(t, ex.SeekTo(250000, media.SeekPreviousSync))
	assert.Equal(t, int64(200000), ex.SampleTime())
	n, err := ex.ReadSampleData(buf)
	require.NoError(t, err)
	assert.Equal(t, payload(5), buf[:n])
}

func TestExtractorFragmentedReadsFromFileOffsets(t *testing.T) {
	path := writeTestFile(t)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	ex, err := OpenExtractor(path)
	require.NoError(t, err)
	defer ex.Close()

	// the test file spans three fragments, one per GOP
	it := ex.tracks[0].newIt()
	for i := 0; i < testFrames; i++ {
		s, ok := it.next()
		require.True(t, ok, "sample %d", i)
		require.Positive(t, s.offset, "sample %d", i)
		end := s.offset + int64(s.size)
		require.LessOrEqual(t, end, int64(len(raw)))
		assert.Equal(t, payload(i), raw[s.offset:end], "sample %d", i)
	}
	_, ok := it.next()
	assert.False(t, ok)
}
