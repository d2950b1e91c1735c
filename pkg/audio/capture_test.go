package audio

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeSession yields scripted reads: a value per call, or an error.
type fakeSession struct {
	mu     sync.Mutex
	reads  []fakeRead
	pos    int
	closed bool
}

type fakeRead struct {
	samples []int16
	err     error
}

var errNoMoreReads = errors.New("no more scripted reads")

func (s *fakeSession) Read() ([]int16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("session closed")
	}
	if s.pos >= len(s.reads) {
		// Simulate a quiet device instead of spinning.
		s.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		s.mu.Lock()
		return nil, errNoMoreReads
	}
	r := s.reads[s.pos]
	s.pos++
	return r.samples, r.err
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// fakeHost hands out sessions from a queue and records open calls.
type fakeHost struct {
	mu         sync.Mutex
	sessions   []*fakeSession
	openErrs   []error // consumed before sessions; nil entries succeed
	openCalls  int
	openRates  []int
	nativeRate int
}

func (h *fakeHost) FindInput(patterns []string) (int, error) { return 3, nil }

func (h *fakeHost) NativeRate(index int) (int, error) {
	if h.nativeRate == 0 {
		return 44100, nil
	}
	return h.nativeRate, nil
}

func (h *fakeHost) Open(index, rate, frameSize int) (Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.openCalls++
	h.openRates = append(h.openRates, rate)
	if len(h.openErrs) > 0 {
		err := h.openErrs[0]
		h.openErrs = h.openErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(h.sessions) == 0 {
		return nil, errors.New("no scripted sessions")
	}
	s := h.sessions[0]
	h.sessions = h.sessions[1:]
	return s, nil
}

func (h *fakeHost) Close() error { return nil }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxReadErrors = 2
	cfg.ReadRetryDelay = time.Millisecond
	cfg.MaxRestarts = 2
	cfg.RestartDelay = time.Millisecond
	cfg.SettleDelay = time.Millisecond
	cfg.StopTimeout = 200 * time.Millisecond
	return cfg
}

func frames(n, size int) []fakeRead {
	out := make([]fakeRead, n)
	for i := range out {
		out[i] = fakeRead{samples: make([]int16, size)}
	}
	return out
}

// collector gathers delivered frames.
type collector struct {
	mu     sync.Mutex
	frames []Frame
}

func (c *collector) consume(f Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestCaptureDeliversFrames(t *testing.T) {
	host := &fakeHost{sessions: []*fakeSession{{reads: frames(5, 1024)}}}
	c := NewCapture(host, testConfig())

	col := &collector{}
	if err := c.Start(col.consume); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	waitFor(t, func() bool { return col.count() >= 5 })

	col.mu.Lock()
	defer col.mu.Unlock()
	for _, f := range col.frames {
		if f.Rate != 16000 {
			t.Errorf("frame rate: got %d, want 16000", f.Rate)
		}
		if len(f.Samples) != 1024 {
			t.Errorf("frame size: got %d, want 1024", len(f.Samples))
		}
	}
}

func TestCaptureStartRejectsNilConsumer(t *testing.T) {
	c := NewCapture(&fakeHost{}, testConfig())
	if err := c.Start(nil); !errors.Is(err, ErrNilConsumer) {
		t.Errorf("got %v, want ErrNilConsumer", err)
	}
}

func TestCaptureDoubleStart(t *testing.T) {
	host := &fakeHost{sessions: []*fakeSession{{reads: frames(1, 8)}}}
	c := NewCapture(host, testConfig())
	if err := c.Start(func(Frame) {}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	if err := c.Start(func(Frame) {}); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("got %v, want ErrAlreadyRunning", err)
	}
}

func TestCaptureFallsBackToNativeRate(t *testing.T) {
	// First open (target rate) fails; second (native 44100) succeeds.
	host := &fakeHost{
		openErrs: []error{errors.New("rate unsupported")},
		sessions: []*fakeSession{{reads: frames(4, 2822)}},
	}
	c := NewCapture(host, testConfig())

	col := &collector{}
	if err := c.Start(col.consume); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	if host.openRates[0] != 16000 || host.openRates[1] != 44100 {
		t.Fatalf("open rates: got %v, want [16000 44100]", host.openRates)
	}

	waitFor(t, func() bool { return col.count() >= 4 })

	// 2822 samples at 44100 resample to ~1024 at 16000.
	col.mu.Lock()
	defer col.mu.Unlock()
	for _, f := range col.frames {
		if f.Rate != 16000 {
			t.Errorf("frame rate: got %d, want 16000", f.Rate)
		}
		if n := len(f.Samples); n < 1023 || n > 1025 {
			t.Errorf("resampled frame size: got %d, want ~1024", n)
		}
	}
}

func TestCaptureInlineRetryThenRecovery(t *testing.T) {
	// Session one: a frame, then persistent errors exceeding MaxReadErrors.
	// Session two (recovery): more frames.
	bad := &fakeSession{reads: append(frames(1, 8),
		fakeRead{err: errors.New("io glitch")},
		fakeRead{err: errors.New("io glitch")},
		fakeRead{err: errors.New("io glitch")},
	)}
	good := &fakeSession{reads: frames(3, 8)}
	host := &fakeHost{sessions: []*fakeSession{bad, good}}
	c := NewCapture(host, testConfig())

	col := &collector{}
	if err := c.Start(col.consume); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	waitFor(t, func() bool { return col.count() >= 4 })

	bad.mu.Lock()
	if !bad.closed {
		t.Error("failed session was not closed during recovery")
	}
	bad.mu.Unlock()
}

func TestCaptureGivesUpAfterMaxRestarts(t *testing.T) {
	// Every session errors immediately and every reopen fails, so the
	// restart budget is exhausted and the pipeline must stop unhealthy
	// instead of looping forever.
	bad := &fakeSession{reads: []fakeRead{
		{err: errors.New("dead")}, {err: errors.New("dead")}, {err: errors.New("dead")},
	}}
	host := &fakeHost{
		sessions: []*fakeSession{bad},
		// reopen attempts all fail
	}
	c := NewCapture(host, testConfig())

	if err := c.Start(func(Frame) {}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, func() bool { return !c.Healthy() })
	waitFor(t, func() bool {
		bad.mu.Lock()
		defer bad.mu.Unlock()
		return bad.closed
	})

	// A second Stop must be a no-op, not a panic.
	c.Stop()
}

func TestCaptureStopStartNoResidualFrames(t *testing.T) {
	first := &fakeSession{reads: frames(50, 8)}
	second := &fakeSession{reads: frames(3, 8)}
	host := &fakeHost{sessions: []*fakeSession{first, second}}
	c := NewCapture(host, testConfig())

	colA := &collector{}
	if err := c.Start(colA.consume); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, func() bool { return colA.count() >= 1 })
	c.Stop()

	colB := &collector{}
	if err := c.Start(colB.consume); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer c.Stop()

	waitFor(t, func() bool { return colB.count() >= 3 })

	// Nothing from the first session may reach the second consumer, and
	// the first consumer must receive nothing after Stop returned.
	after := colA.count()
	time.Sleep(20 * time.Millisecond)
	if colA.count() != after {
		t.Error("first consumer received frames after Stop")
	}
	if colB.count() > 3 {
		t.Errorf("second consumer got %d frames, want exactly 3", colB.count())
	}
}

func TestCaptureHealthy(t *testing.T) {
	host := &fakeHost{sessions: []*fakeSession{{reads: frames(2, 8)}}}
	cfg := testConfig()
	cfg.HealthWindow = 50 * time.Millisecond
	c := NewCapture(host, cfg)

	if c.Healthy() {
		t.Error("healthy before Start")
	}
	if err := c.Start(func(Frame) {}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !c.Healthy() {
		t.Error("not healthy right after Start")
	}

	// After the scripted frames run out, the health window lapses.
	waitFor(t, func() bool { return !c.Healthy() })
	c.Stop()
}
