package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/srg/blemon/internal/groutine"
	"golang.org/x/term"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// ProgressPrinter redraws a single "prefix (phase Ns)" line until stopped.
// With a duration it counts down, otherwise it counts up.
//
// A ProgressPrinter is single-use. Stop may be called any number of times.
type ProgressPrinter struct {
	out      io.Writer
	prefix   string
	duration time.Duration
	phase    atomic.Value

	startOnce sync.Once
	stopOnce  sync.Once
	started   time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewProgressPrinter creates a printer writing to out. A nil or non-terminal
// out disables drawing.
func NewProgressPrinter(out io.Writer, prefix, phase string, duration time.Duration) *ProgressPrinter {
	if out == nil || !isTerminal(out) {
		out = io.Discard
	}
	p := &ProgressPrinter{out: out, prefix: prefix, duration: duration}
	p.phase.Store(phase)
	return p
}

// Start begins redrawing in a background goroutine.
func (p *ProgressPrinter) Start() {
	p.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		p.cancel = cancel
		p.done = make(chan struct{})
		p.started = time.Now()
		p.draw(p.phase.Load().(string), 0)

		groutine.Go(ctx, "progress", func(ctx context.Context) {
			defer close(p.done)
			ticker := time.NewTicker(progressUpdateInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					p.draw(p.phase.Load().(string), p.seconds())
				}
			}
		})
	})
}

// SetPhase changes the phase shown on the next redraw.
func (p *ProgressPrinter) SetPhase(phase string) {
	p.phase.Store(phase)
}

// Stop ends the redraw loop and clears the line.
func (p *ProgressPrinter) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel == nil {
			return
		}
		p.cancel()
		<-p.done
		fmt.Fprint(p.out, clearLineSequence)
	})
}

func (p *ProgressPrinter) seconds() int {
	elapsed := time.Since(p.started)
	if p.duration <= 0 {
		return int(elapsed.Seconds())
	}
	remaining := p.duration - elapsed
	if remaining <= 0 {
		return 0
	}
	// 3.7s -> 4s
	return int(remaining.Seconds() + 0.5)
}

func (p *ProgressPrinter) draw(phase string, seconds int) {
	if seconds > 0 {
		fmt.Fprintf(p.out, "\r%s (%s %ds)   ", p.prefix, phase, seconds)
	} else {
		fmt.Fprintf(p.out, "\r%s (%s...)   ", p.prefix, phase)
	}
}
