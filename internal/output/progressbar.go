package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/emmersive/akamai-cache-tester/internal/utils"
)

// ProgressBar renders probing progress on stderr. It satisfies the
// scheduler's ProgressSink and degrades to a no-op when stderr is not a
// terminal, so piped runs stay clean.
type ProgressBar struct {
	mu           sync.Mutex
	total        int
	current      int
	width        int
	refresh      time.Duration
	startTime    time.Time
	writer       io.Writer
	isTerminal   bool
	active       bool
	done         chan struct{}
	spinner      int
	spinnerChars []string
	prefix       string
}

func NewProgressBar(width int) *ProgressBar {
	return &ProgressBar{
		width:        width,
		refresh:      250 * time.Millisecond,
		writer:       os.Stderr,
		isTerminal:   utils.IsTerminal(os.Stderr),
		spinnerChars: []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
	}
}

// SetPrefix sets the text rendered before the spinner.
func (pb *ProgressBar) SetPrefix(prefix string) {
	pb.mu.Lock()
	pb.prefix = prefix
	pb.mu.Unlock()
}

// Start begins rendering for a run of the given size. The ticker keeps
// the spinner and the elapsed/ETA columns moving between probe
// completions.
func (pb *ProgressBar) Start(total int) {
	pb.mu.Lock()
	if pb.active {
		pb.mu.Unlock()
		return
	}
	pb.total = total
	pb.current = 0
	pb.startTime = time.Now()
	pb.active = true
	pb.done = make(chan struct{})
	pb.mu.Unlock()

	if !pb.isTerminal {
		return
	}

	pb.render()
	go func() {
		ticker := time.NewTicker(pb.refresh)
		defer ticker.Stop()
		for {
			select {
			case <-pb.done:
				return
			case <-ticker.C:
				pb.render()
			}
		}
	}()
}

// Increment records one finished probe.
func (pb *ProgressBar) Increment() {
	pb.mu.Lock()
	pb.current++
	pb.mu.Unlock()
	if pb.isTerminal {
		pb.render()
	}
}

// Finish stops the ticker and clears the bar line so the report starts
// on a clean row.
func (pb *ProgressBar) Finish() {
	pb.mu.Lock()
	if !pb.active {
		pb.mu.Unlock()
		return
	}
	pb.active = false
	close(pb.done)
	if pb.isTerminal {
		fmt.Fprint(pb.writer, "\033[2K\r")
	}
	pb.mu.Unlock()
}

func (pb *ProgressBar) render() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if !pb.active || !pb.isTerminal {
		return
	}
	fmt.Fprint(pb.writer, "\033[2K\r"+pb.statusLine())
}

// statusLine builds the rendered row. Callers must hold pb.mu.
func (pb *ProgressBar) statusLine() string {
	pb.spinner = (pb.spinner + 1) % len(pb.spinnerChars)

	percent := 0.0
	if pb.total > 0 {
		percent = float64(pb.current) / float64(pb.total) * 100
	}

	elapsed := time.Since(pb.startTime)
	etaStr := "N/A"
	switch {
	case pb.current > 0 && pb.current < pb.total:
		eta := time.Duration(float64(elapsed) * float64(pb.total-pb.current) / float64(pb.current))
		etaStr = formatDuration(eta)
	case pb.total > 0 && pb.current >= pb.total:
		etaStr = "Done"
	}

	completed := 0
	if pb.total > 0 {
		completed = int(float64(pb.width) * float64(pb.current) / float64(pb.total))
	}
	if completed > pb.width {
		completed = pb.width
	}
	bar := strings.Repeat("█", completed) + strings.Repeat("░", pb.width-completed)

	return fmt.Sprintf("%s%s [%s] %d/%d (%.2f%%) | Elapsed: %s | ETA: %s",
		pb.prefix,
		pb.spinnerChars[pb.spinner],
		bar,
		pb.current, pb.total,
		percent,
		formatDuration(elapsed),
		etaStr,
	)
}

// LogWriter wraps a log destination so log lines and the bar share the
// terminal without tearing: each write clears the bar row, emits the log
// line, then redraws the bar beneath it.
func (pb *ProgressBar) LogWriter(w io.Writer) io.Writer {
	return &coordinatedWriter{pb: pb, w: w}
}

type coordinatedWriter struct {
	pb *ProgressBar
	w  io.Writer
}

func (cw *coordinatedWriter) Write(p []byte) (int, error) {
	cw.pb.mu.Lock()
	defer cw.pb.mu.Unlock()

	if !cw.pb.active || !cw.pb.isTerminal {
		return cw.w.Write(p)
	}

	fmt.Fprint(cw.pb.writer, "\033[2K\r")
	n, err := cw.w.Write(p)
	if err == nil {
		fmt.Fprint(cw.pb.writer, cw.pb.statusLine())
	}
	return n, err
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	s := d.Seconds()
	if s < 0 {
		s = 0
	}

	if s < 60 {
		return fmt.Sprintf("%.0fs", s)
	}

	m := int(s/60) % 60
	h := int(s / 3600)
	remainder := int(s) % 60

	if h < 1 {
		return fmt.Sprintf("%dm%02ds", m, remainder)
	}
	return fmt.Sprintf("%dh%02dm%02ds", h, m, remainder)
}
