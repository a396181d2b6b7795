package progress

import (
	"bytes"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// syncBuffer is a bytes.Buffer safe for the ticker goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fixedSource struct {
	calls atomic.Int64
	snap  Snapshot
}

func (f *fixedSource) ProgressSnapshot() Snapshot {
	f.calls.Add(1)
	return f.snap
}

func TestNewProgress(t *testing.T) {
	src := &fixedSource{}
	progress := NewProgress(src, false)

	if progress.source != src {
		t.Error("source not assigned")
	}
	if progress.quiet {
		t.Error("quiet should be false")
	}
	if progress.interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", progress.interval, DefaultInterval)
	}
}

func TestProgress_QuietMode(t *testing.T) {
	src := &fixedSource{}
	progress := NewProgress(src, true)
	progress.SetInterval(time.Millisecond)

	progress.Start()
	time.Sleep(20 * time.Millisecond)
	progress.Stop()

	if src.calls.Load() != 0 {
		t.Error("quiet progress must not poll its source")
	}
}

func TestProgress_DoubleStop(t *testing.T) {
	progress := NewProgress(&fixedSource{}, false)
	progress.SetOutput(&bytes.Buffer{})
	progress.Start()

	progress.Stop()
	progress.Stop()
}

func TestProgress_StopWithoutStart(t *testing.T) {
	progress := NewProgress(&fixedSource{}, false)
	progress.SetOutput(&bytes.Buffer{})

	progress.Stop()
}

func TestProgress_TicksRenderSnapshot(t *testing.T) {
	src := &fixedSource{snap: Snapshot{
		Sessions:  12,
		Active:    3,
		Events:    140,
		Queued:    7,
		Delivered: 120,
		Revenue:   decimal.RequireFromString("259.9"),
	}}
	var out syncBuffer
	progress := NewProgress(src, false)
	progress.SetOutput(&out)
	progress.SetInterval(5 * time.Millisecond)

	progress.Start()
	time.Sleep(40 * time.Millisecond)
	progress.Stop()

	if src.calls.Load() == 0 {
		t.Fatal("expected at least one refresh")
	}
	got := out.String()
	for _, want := range []string{"Sessions: 12 (active 3)", "Events: 140", "Queued: 7", "Delivered: 120", "Revenue: $259.90"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in output, got %q", want, got)
		}
	}
}

func TestLine(t *testing.T) {
	line := Line(83*time.Second, Snapshot{Sessions: 1, Events: 2})

	if !strings.HasPrefix(line, "\033[K[01:23] ") {
		t.Errorf("unexpected prefix: %q", line)
	}
	if !strings.HasSuffix(line, "\r") {
		t.Errorf("line must end with carriage return: %q", line)
	}
	if !strings.Contains(line, "Revenue: $0.00") {
		t.Errorf("zero revenue not rendered: %q", line)
	}
}

func TestProgress_Print(t *testing.T) {
	var buf bytes.Buffer
	progress := NewProgress(&fixedSource{}, false)
	progress.SetOutput(&buf)

	progress.Print("Simulation: 60s, up to 10 sessions per wave")

	output := buf.String()

	if !strings.Contains(output, "\033[K") {
		t.Error("expected output to contain line clear escape sequence")
	}
	if !strings.Contains(output, "Simulation: 60s, up to 10 sessions per wave\n") {
		t.Errorf("expected message with newline, got: %q", output)
	}
}

func TestProgress_Print_QuietModeDoesNotPrint(t *testing.T) {
	var buf bytes.Buffer
	progress := NewProgress(&fixedSource{}, true)
	progress.SetOutput(&buf)

	progress.Print("Simulation starting")
	progress.Printf("Sink: %s", "http")

	if output := buf.String(); output != "" {
		t.Errorf("expected no output in quiet mode, got: %q", output)
	}
}

func TestProgress_Printf(t *testing.T) {
	var buf bytes.Buffer
	progress := NewProgress(&fixedSource{}, false)
	progress.SetOutput(&buf)

	progress.Printf("Sink: %s (batch size: %d)", "kafka", 20)

	if output := buf.String(); !strings.Contains(output, "Sink: kafka (batch size: 20)\n") {
		t.Errorf("expected formatted message, got: %q", output)
	}
}

func TestProgress_SetOutput(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	progress := NewProgress(&fixedSource{}, false)

	progress.SetOutput(&buf1)
	progress.Print("message1")

	progress.SetOutput(&buf2)
	progress.Print("message2")

	if !strings.Contains(buf1.String(), "message1") {
		t.Error("expected message1 in buf1")
	}
	if !strings.Contains(buf2.String(), "message2") {
		t.Error("expected message2 in buf2")
	}
	if strings.Contains(buf1.String(), "message2") {
		t.Error("buf1 should not contain message2")
	}
}
