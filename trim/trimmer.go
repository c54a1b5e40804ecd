// Package trim cuts a time window out of a recording into a new file
// without re-encoding.
package trim

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yeti47/screenrec/ccc/logging"
	"github.com/yeti47/screenrec/media"
)

// Trimmer produces a trimmed copy of a recording.
type Trimmer interface {
	TrimContext(ctx context.Context, inputPath, outputPath string, startMs, endMs int64) error
}

// Pipeline copies the samples of all audio and video tracks whose presentation time
// lies in [startMs, endMs) into a new container, shifting timestamps so the window
// starts at zero. Samples are never decoded.
type Pipeline struct {
	logger logging.Logger
	open   media.ExtractorOpener
	create media.MuxerCreator
}

// NewPipeline creates a trim pipeline that reads through open and writes through create.
func NewPipeline(logger logging.Logger, open media.ExtractorOpener, create media.MuxerCreator) *Pipeline {
	if logger == nil {
		logger = logging.NopLogger
	}
	return &Pipeline{logger: logger, open: open, create: create}
}

type trackPlan struct {
	source int
	dest   int
	format media.TrackFormat
}

// Trim writes the window [startMs, endMs) of inputPath to outputPath.
func (p *Pipeline) Trim(inputPath, outputPath string, startMs, endMs int64) error {
	return p.TrimContext(context.Background(), inputPath, outputPath, startMs, endMs)
}

// TrimContext is Trim with cancellation checked between samples.
func (p *Pipeline) TrimContext(ctx context.Context, inputPath, outputPath string, startMs, endMs int64) (err error) {
	if startMs < 0 || endMs <= startMs {
		return fmt.Errorf("%w: start %dms, end %dms", ErrInvalidRange, startMs, endMs)
	}
	startUs, endUs := startMs*1000, endMs*1000

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return newIOError("create output directory", outputPath, err)
	}

	source, err := p.open(inputPath)
	if err != nil {
		return newIOError("open input", inputPath, err)
	}

	muxer, err := p.create(outputPath)
	if err != nil {
		source.Close()
		return newIOError("create output", outputPath, err)
	}

	started := false
	defer func() {
		if closeErr := source.Close(); closeErr != nil {
			p.logger.Warn("Failed to close input", "path", inputPath, "error", closeErr)
		}
		if started {
			// a failed stop only matters when everything else succeeded
			if stopErr := muxer.Stop(); stopErr != nil {
				if err == nil {
					err = newIOError("finish output", outputPath, stopErr)
				} else {
					p.logger.Warn("Failed to stop muxer", "path", outputPath, "error", stopErr)
				}
			}
		}
		if closeErr := muxer.Close(); closeErr != nil && err == nil {
			err = newIOError("close output", outputPath, closeErr)
		}
	}()

	var plans []trackPlan
	for i := 0; i < source.TrackCount(); i++ {
		format, err := source.TrackFormat(i)
		if err != nil {
			return newIOError("read track format", inputPath, err)
		}
		if !format.Kind.IsAudioVisual() {
			p.logger.Debug("Skipping track", "track", i, "kind", format.Kind)
			continue
		}
		dest, err := muxer.AddTrack(format)
		if err != nil {
			return newIOError("add track", outputPath, err)
		}
		plans = append(plans, trackPlan{source: i, dest: dest, format: format})
	}
	if len(plans) == 0 {
		return newIOError("read tracks", inputPath, ErrNoTracks)
	}

	if err := muxer.Start(); err != nil {
		return newIOError("start output", outputPath, err)
	}
	started = true

	for _, plan := range plans {
		written, err := p.copyTrack(ctx, inputPath, outputPath, plan, startUs, endUs, muxer)
		if err != nil {
			return err
		}
		p.logger.Debug("Copied track", "track", plan.source, "format", plan.format.String(), "samples", written)
	}

	p.logger.Info("Trimmed recording", "input", inputPath, "output", outputPath, "start_ms", startMs, "end_ms", endMs)
	return nil
}

// copyTrack copies one track through its own reader, so every track is read independently
// from the sync sample preceding the window.
func (p *Pipeline) copyTrack(ctx context.Context, inputPath, outputPath string, plan trackPlan, startUs, endUs int64, muxer media.Muxer) (int, error) {
	reader, err := p.open(inputPath)
	if err != nil {
		return 0, newIOError("open input", inputPath, err)
	}
	defer reader.Close()

	if err := reader.SelectTrack(plan.source); err != nil {
		return 0, newIOError("select track", inputPath, err)
	}
	if err := reader.SeekTo(startUs, media.SeekPreviousSync); err != nil {
		return 0, newIOError("seek", inputPath, err)
	}

	buf := make([]byte, plan.format.BufferSize())
	written := 0
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		sampleTime := reader.SampleTime()
		if sampleTime < 0 || sampleTime >= endUs {
			break
		}
		if sampleTime < startUs {
			if !reader.Advance() {
				break
			}
			continue
		}

		n, err := reader.ReadSampleData(buf)
		if err != nil {
			return written, newIOError("read sample", inputPath, err)
		}

		info := media.SampleInfo{
			PresentationTimeUs:  sampleTime - startUs,
			CompositionOffsetUs: reader.SampleCompositionOffset(),
			Flags:               reader.SampleFlags(),
			Size:                n,
		}
		if err := muxer.WriteSampleData(plan.dest, buf[:n], info); err != nil {
			return written, newIOError("write sample", outputPath, err)
		}
		written++

		if !reader.Advance() {
			break
		}
	}
	return written, nil
}
