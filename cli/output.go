package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/yeti47/screenrec/recordings"
	"github.com/yeti47/screenrec/trim"
)

type Formatter struct {
	w io.Writer
}

func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{w: w}
}

func (f *Formatter) WaitingForPermission() {
	fmt.Fprintf(f.w, "🔐 Waiting for screen capture permission...\n")
}

func (f *Formatter) RecordingStarted(file string, sync bool) {
	fmt.Fprintf(f.w, "🔴 Recording to %s\n", file)
	if sync {
		fmt.Fprintf(f.w, "   Press Ctrl+C to stop\n")
	}
}

func (f *Formatter) RecordingSaved(file string, size int64, duration time.Duration) {
	fmt.Fprintf(f.w, "⏹️  Recording saved: %s (%s, %s)\n", file, humanize.Bytes(uint64(size)), formatDuration(duration))
}

func (f *Formatter) RecordingCancelled() {
	fmt.Fprintf(f.w, "🗑️  Recording discarded\n")
}

func (f *Formatter) TrimDone(job trim.Job, size int64) {
	fmt.Fprintf(f.w, "✂️  Trimmed %s to %s (%s)\n",
		formatDuration(time.Duration(job.StartMs)*time.Millisecond)+"-"+formatDuration(time.Duration(job.EndMs)*time.Millisecond),
		job.OutputPath, humanize.Bytes(uint64(size)))
}

func (f *Formatter) Error(msg string) {
	fmt.Fprintf(f.w, "❌ %s\n", msg)
}

func (f *Formatter) Info(msg string) {
	fmt.Fprintf(f.w, "ℹ️  %s\n", msg)
}

func (f *Formatter) Success(msg string) {
	fmt.Fprintf(f.w, "✅ %s\n", msg)
}

func (f *Formatter) Warning(msg string) {
	fmt.Fprintf(f.w, "⚠️  %s\n", msg)
}

func (f *Formatter) SetupCheck(name string, ok bool, detail string) {
	if ok {
		fmt.Fprintf(f.w, "  ✅ %s: %s\n", name, detail)
	} else {
		fmt.Fprintf(f.w, "  ❌ %s: %s\n", name, detail)
	}
}

func (f *Formatter) RecordingList(items []*recordings.Recording, total int, now time.Time) {
	if len(items) == 0 {
		f.Info("No recordings found")
		return
	}

	tw := tabwriter.NewWriter(f.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tDURATION\tSIZE\tRESOLUTION\tPATH")
	for _, r := range items {
		res := "-"
		if r.Width > 0 && r.Height > 0 {
			res = fmt.Sprintf("%dx%d", r.Width, r.Height)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			humanize.RelTime(r.CreatedAt, now, "ago", "from now"),
			formatDuration(r.Duration),
			humanize.Bytes(uint64(r.SizeBytes)),
			res,
			r.Path)
	}
	tw.Flush()

	if total > len(items) {
		fmt.Fprintf(f.w, "\n%d of %d recordings\n", len(items), total)
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
