package mp4

import "github.com/Eyevinn/mp4ff/mp4"

// tableIterator walks the sample tables (stts, stsc, stco/co64, stsz, stss, ctts)
// of a progressive track incrementally, without materializing per-sample entries.
type tableIterator struct {
	stbl    *mp4.StblBox
	total   uint32
	nChunks uint32

	nr uint32 // next sample number, 1-based

	sttsIdx    int
	sttsLeft   uint32
	delta      uint32
	decodeTime uint64

	stscIdx     int
	chunkNr     uint32
	leftInChunk uint32
	offset      int64

	stssIdx int
}

func newTableIterator(stbl *mp4.StblBox) *tableIterator {
	it := &tableIterator{stbl: stbl}
	if stbl.Stsz != nil {
		it.total = stbl.Stsz.SampleNumber
	}
	switch {
	case stbl.Stco != nil:
		it.nChunks = uint32(len(stbl.Stco.ChunkOffset))
	case stbl.Co64 != nil:
		it.nChunks = uint32(len(stbl.Co64.ChunkOffset))
	}
	it.reset()
	return it
}

func (it *tableIterator) reset() {
	it.nr = 1
	it.sttsIdx, it.sttsLeft, it.delta, it.decodeTime = 0, 0, 0, 0
	it.stscIdx, it.chunkNr, it.leftInChunk, it.offset = 0, 0, 0, 0
	it.stssIdx = 0
}

func (it *tableIterator) next() (sample, bool) {
	if it.nr > it.total || it.stbl.Stts == nil || it.stbl.Stsc == nil {
		return sample{}, false
	}
	stts := it.stbl.Stts

	for it.sttsLeft == 0 {
		if it.sttsIdx >= len(stts.SampleCount) {
			return sample{}, false
		}
		it.sttsLeft = stts.SampleCount[it.sttsIdx]
		it.delta = stts.SampleTimeDelta[it.sttsIdx]
		it.sttsIdx++
	}

	for it.leftInChunk == 0 {
		it.chunkNr++
		if it.chunkNr > it.nChunks {
			return sample{}, false
		}
		it.leftInChunk = it.samplesPerChunk(it.chunkNr)
		it.offset = it.chunkOffset(it.chunkNr)
	}

	s := sample{
		decodeTime: it.decodeTime,
		dur:        it.delta,
		size:       sampleSizeOf(it.stbl.Stsz, it.nr),
		offset:     it.offset,
		flags:      uint32(it.flags(it.nr)),
	}
	if it.stbl.Ctts != nil {
		s.cto = it.stbl.Ctts.GetCompositionTimeOffset(it.nr)
	}

	it.decodeTime += uint64(it.delta)
	it.sttsLeft--
	it.offset += int64(s.size)
	it.leftInChunk--
	it.nr++
	return s, true
}

func (it *tableIterator) samplesPerChunk(chunkNr uint32) uint32 {
	entries := it.stbl.Stsc.Entries
	for it.stscIdx+1 < len(entries) && entries[it.stscIdx+1].FirstChunk <= chunkNr {
		it.stscIdx++
	}
	if len(entries) == 0 {
		return 0
	}
	return entries[it.stscIdx].SamplesPerChunk
}

func (it *tableIterator) chunkOffset(chunkNr uint32) int64 {
	if it.stbl.Stco != nil {
		return int64(it.stbl.Stco.ChunkOffset[chunkNr-1])
	}
	return int64(it.stbl.Co64.ChunkOffset[chunkNr-1])
}

// flags derives sample flags from stss. A track without stss has only sync samples.
func (it *tableIterator) flags(nr uint32) uint32 {
	stss := it.stbl.Stss
	if stss == nil {
		return mp4.SyncSampleFlags
	}
	for it.stssIdx < len(stss.SampleNumber) && stss.SampleNumber[it.stssIdx] < nr {
		it.stssIdx++
	}
	if it.stssIdx < len(stss.SampleNumber) && stss.SampleNumber[it.stssIdx] == nr {
		return mp4.SyncSampleFlags
	}
	return mp4.NonSyncSampleFlags
}

func sampleSizeOf(stsz *mp4.StszBox, nr uint32) uint32 {
	if stsz.SampleUniformSize != 0 {
		return stsz.SampleUniformSize
	}
	return stsz.SampleSize[nr-1]
}
