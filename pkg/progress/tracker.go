// Package progress prints what the compressor is doing, driven by the events
// it emits: per-file start/end lines, per-block details at high verbosity and
// a periodic throughput line.
package progress

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"bkz/pkg/event"

	"github.com/fatih/color"
)

var (
	labelColor = color.New(color.FgCyan, color.Bold)
	doneColor  = color.New(color.FgGreen)
	blockColor = color.New(color.FgBlue)
)

// Tracker is an event.Listener. It is safe to share between files that are
// compressed in parallel.
type Tracker struct {
	out       io.Writer
	verbosity int
	interval  time.Duration

	processed atomic.Uint64
	files     atomic.Int64
	total     atomic.Uint64

	mu      sync.Mutex
	starts  map[string]time.Time
	done    chan struct{}
	stopped chan struct{}
	running bool
}

// NewTracker creates a tracker printing to out.
func NewTracker(out io.Writer, verbosity int) *Tracker {
	return &Tracker{
		out:       out,
		verbosity: verbosity,
		interval:  time.Second,
		starts:    make(map[string]time.Time),
	}
}

// SetTotal sets the expected number of input bytes, used for percentages.
func (t *Tracker) SetTotal(size uint64) {
	t.total.Store(size)
}

// Processed returns the number of input bytes seen in block events.
func (t *Tracker) Processed() uint64 {
	return t.processed.Load()
}

// Files returns the number of files that completed.
func (t *Tracker) Files() int64 {
	return t.files.Load()
}

// Start launches the periodic progress line.
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.done = make(chan struct{})
	t.stopped = make(chan struct{})
	t.running = true
	go t.logger(t.done, t.stopped)
}

// Stop ends the periodic line and prints the final summary.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	close(t.done)
	stopped := t.stopped
	t.mu.Unlock()
	<-stopped
}

// ProcessEvent implements event.Listener.
func (t *Tracker) ProcessEvent(evt *event.Event) {
	switch evt.Type {
	case event.CompressionStart:
		t.mu.Lock()
		t.starts[evt.Source] = evt.Time
		t.mu.Unlock()
		t.printf("%s %s\n", labelColor.Sprint("Encoding"), evt.Source)
	case event.CompressionEnd:
		t.files.Add(1)
		t.mu.Lock()
		start, ok := t.starts[evt.Source]
		delete(t.starts, evt.Source)
		t.mu.Unlock()
		elapsed := time.Duration(0)
		if ok {
			elapsed = evt.Time.Sub(start)
		}
		t.printf("%s %s => %s in %s\n", doneColor.Sprint("Encoded"), evt.Source,
			formatSize(uint64(evt.Size)), elapsed.Round(time.Millisecond))
	case event.BeforeTransform:
		t.processed.Add(uint64(evt.Size))
		if t.verbosity > 4 {
			t.printf("%s %s\n", blockColor.Sprint("Block"), evt)
		}
	default:
		if t.verbosity > 4 {
			t.printf("%s %s\n", blockColor.Sprint("Block"), evt)
		}
	}
}

func (t *Tracker) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}

// formatSize returns a human-readable size string
func formatSize(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// formatRate returns a human-readable rate string
func formatRate(bytesPerSec uint64) string {
	return formatSize(bytesPerSec) + "/s"
}

// logger prints processing progress periodically
func (t *Tracker) logger(done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	var prevBytes uint64
	startTime := time.Now()

	for {
		select {
		case <-ticker.C:
			currentBytes := t.processed.Load()
			rate := uint64(float64(currentBytes-prevBytes) / t.interval.Seconds())
			prevBytes = currentBytes

			if total := t.total.Load(); total > 0 {
				percentage := float64(currentBytes) / float64(total) * 100
				t.printf("Processed %s of %s (%.1f%%) | Rate: %s\n",
					formatSize(currentBytes), formatSize(total), percentage, formatRate(rate))
			} else {
				t.printf("Processed %s | Rate: %s\n", formatSize(currentBytes), formatRate(rate))
			}
		case <-done:
			totalTime := time.Since(startTime).Seconds()
			if totalTime < 0.001 {
				totalTime = 0.001 // Avoid division by zero
			}
			processed := t.processed.Load()
			t.printf("Completed %d file(s), %s in %.1f seconds (avg rate: %s)\n",
				t.files.Load(), formatSize(processed), totalTime,
				formatRate(uint64(float64(processed)/totalTime)))
			return
		}
	}
}
