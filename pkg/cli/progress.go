package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// ProgressReporter reports progress of a bulk operation.
type ProgressReporter interface {
	Start(total int64)
	Update(current int64)
	Finish()
	Error(err error)
}

// SimpleProgress draws a single-line progress bar.
type SimpleProgress struct {
	mu      sync.Mutex
	label   string
	total   int64
	current int64
	started time.Time
	writer  io.Writer
}

// NewProgressReporter creates a progress bar writing to w, or stderr when
// w is nil.
func NewProgressReporter(w io.Writer) ProgressReporter {
	return NewLabeledProgress(w, "Progress")
}

// NewLabeledProgress creates a progress bar prefixed with label.
func NewLabeledProgress(w io.Writer, label string) *SimpleProgress {
	if w == nil {
		w = os.Stderr
	}
	return &SimpleProgress{writer: w, label: label}
}

// Start sets the number of items.
func (p *SimpleProgress) Start(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
	p.current = 0
	p.started = time.Now()
	p.render()
}

// Update sets the number of completed items. Updates arriving out of
// order never move the bar backwards.
func (p *SimpleProgress) Update(current int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if current < p.current {
		return
	}
	p.current = current
	p.render()
}

// Finish completes the bar and ends the line.
func (p *SimpleProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = p.total
	p.render()
	fmt.Fprintln(p.writer)
}

// Error ends the bar with err.
func (p *SimpleProgress) Error(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.writer, "\nError: %v\n", err)
}

func (p *SimpleProgress) render() {
	if p.total <= 0 {
		return
	}

	const width = 30
	ratio := float64(p.current) / float64(p.total)
	filled := int(ratio * width)
	bar := strings.Repeat("#", filled) + strings.Repeat("-", width-filled)

	fmt.Fprintf(p.writer, "\r%s: [%s] %5.1f%% (%d/%d) %s",
		p.label, bar, ratio*100, p.current, p.total, time.Since(p.started).Round(time.Millisecond))
}
