// Package progress renders a one-line live status of a running simulation.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is the point-in-time state shown on the status line.
type Snapshot struct {
	Sessions  int64
	Active    int64
	Events    int64
	Queued    int64
	Delivered int64
	Revenue   decimal.Decimal
}

// Source supplies snapshots while the run is in progress.
type Source interface {
	ProgressSnapshot() Snapshot
}

const DefaultInterval = time.Second

type Progress struct {
	startTime time.Time
	source    Source
	interval  time.Duration
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopped   atomic.Bool
	quiet     bool
	output    io.Writer
	mu        sync.Mutex
}

func NewProgress(src Source, quiet bool) *Progress {
	return &Progress{
		source:   src,
		quiet:    quiet,
		interval: DefaultInterval,
		output:   os.Stderr,
	}
}

func (p *Progress) SetOutput(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.output = w
}

// SetInterval changes the refresh period. It has no effect after Start.
func (p *Progress) SetInterval(d time.Duration) {
	if d > 0 {
		p.interval = d
	}
}

func (p *Progress) Start() {
	if p.quiet {
		return
	}
	p.startTime = time.Now()
	p.stopCh = make(chan struct{})
	p.ticker = time.NewTicker(p.interval)
	go p.run()
}

func (p *Progress) run() {
	for {
		select {
		case <-p.stopCh:
			return
		case <-p.ticker.C:
			p.printProgress()
		}
	}
}

func (p *Progress) printProgress() {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.output, Line(time.Since(p.startTime), p.source.ProgressSnapshot()))
}

// Line formats a status line for the given elapsed time. The line starts
// with a clear-to-end-of-line escape and ends with a carriage return so the
// next refresh overwrites it.
func Line(elapsed time.Duration, s Snapshot) string {
	elapsed = elapsed.Round(time.Second)
	mins := int(elapsed.Minutes())
	secs := int(elapsed.Seconds()) % 60
	return fmt.Sprintf("\033[K[%02d:%02d] Sessions: %d (active %d) | Events: %d | Queued: %d | Delivered: %d | Revenue: $%s\r",
		mins, secs, s.Sessions, s.Active, s.Events, s.Queued, s.Delivered, s.Revenue.StringFixed(2))
}

func (p *Progress) Stop() {
	if p.quiet || p.stopped.Swap(true) {
		return
	}
	if p.ticker != nil {
		p.ticker.Stop()
	}
	if p.stopCh != nil {
		close(p.stopCh)
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K")
	p.mu.Unlock()
}

func (p *Progress) Print(message string) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K%s\n", message)
	p.mu.Unlock()
}

func (p *Progress) Printf(format string, args ...interface{}) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K"+format+"\n", args...)
	p.mu.Unlock()
}
