package trim

import (
	"path/filepath"
	"testing"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeti47/screenrec/media"
	mp4media "github.com/yeti47/screenrec/media/mp4"
)

func writeRecording(t *testing.T, path string) {
	t.Helper()

	sps := []byte{0x67, 0x42, 0xc0, 0x1f, 0xda, 0x01, 0x40, 0x16, 0xe4}
	pps := []byte{0x68, 0xce, 0x3c, 0x80}
	avcC, err := mp4.CreateAvcC([][]byte{sps}, [][]byte{pps}, true)
	require.NoError(t, err)

	muxer, err := mp4media.NewMuxer(path)
	require.NoError(t, err)
	defer muxer.Close()

	_, err = muxer.AddTrack(media.TrackFormat{
		Kind:        media.KindVideo,
		Codec:       "avc1",
		Timescale:   90000,
		Width:       1280,
		Height:      720,
		SampleEntry: mp4.CreateVisualSampleEntryBox("avc1", 1280, 720, avcC),
	})
	require.NoError(t, err)
	require.NoError(t, muxer.Start())

	// 4 seconds at 25 fps, keyframe every second
	for i := 0; i < 100; i++ {
		flags := media.NonSyncSampleFlags
		if i%25 == 0 {
			flags = media.SyncSampleFlags
		}
		data := []byte{byte(i), byte(i >> 8), 0xff}
		require.NoError(t, muxer.WriteSampleData(0, data, media.SampleInfo{
			PresentationTimeUs: int64(i) * 40_000,
			Flags:              flags,
			Size:               len(data),
		}))
	}
	require.NoError(t, muxer.Stop())
}

func TestTrimMP4RoundTrip(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.mp4")
	output := filepath.Join(dir, "edited", "out.mp4")
	writeRecording(t, input)

	pipeline := NewPipeline(nil, mp4media.Open, mp4media.Create)
	require.NoError(t, pipeline.Trim(input, output, 1000, 2000))

	ex, err := mp4media.OpenExtractor(output)
	require.NoError(t, err)
	defer ex.Close()

	require.Equal(t, 1, ex.TrackCount())
	require.NoError(t, ex.SelectTrack(0))

	buf := make([]byte, 64)
	count := 0
	for ex.SampleTime() >= 0 {
		assert.Equal(t, int64(count)*40_000, ex.SampleTime())
		assert.Equal(t, count == 0, ex.SampleFlags().IsSync())

		n, err := ex.ReadSampleData(buf)
		require.NoError(t, err)
		source := 25 + count
		assert.Equal(t, []byte{byte(source), byte(source >> 8), 0xff}, buf[:n])

		count++
		if !ex.Advance() {
			break
		}
	}
	assert.Equal(t, 25, count)
}

func TestTrimMP4FullRangeKeepsEverySample(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.mp4")
	output := filepath.Join(dir, "out.mp4")
	writeRecording(t, input)

	pipeline := NewPipeline(nil, mp4media.Open, mp4media.Create)
	require.NoError(t, pipeline.Trim(input, output, 0, 4000))

	ex, err := mp4media.OpenExtractor(output)
	require.NoError(t, err)
	defer ex.Close()

	require.NoError(t, ex.SelectTrack(0))
	buf := make([]byte, 64)
	count := 0
	for ex.SampleTime() >= 0 {
		assert.Equal(t, int64(count)*40_000, ex.SampleTime(), "sample %d", count)
		assert.Equal(t, count%25 == 0, ex.SampleFlags().IsSync(), "sample %d", count)

		n, err := ex.ReadSampleData(buf)
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(count), byte(count >> 8), 0xff}, buf[:n], "sample %d", count)

		count++
		if !ex.Advance() {
			break
		}
	}
	assert.Equal(t, 100, count)
}
