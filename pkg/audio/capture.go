package audio

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-astro/internal/log"
	"github.com/teslashibe/go-astro/internal/metrics"
)

// Config holds the tunable parameters of the capture pipeline.
type Config struct {
	// TargetRate is the sample rate consumers expect (default 16000).
	TargetRate int

	// FrameSize is the frame length in samples at the target rate
	// (default 1024).
	FrameSize int

	// Device is the input device index, or AutoDevice to detect.
	Device int

	// MaxReadErrors is how many consecutive read errors are retried in
	// place before the session is recreated (default 10).
	MaxReadErrors int

	// ReadRetryDelay is the pause between in-place read retries
	// (default 10ms).
	ReadRetryDelay time.Duration

	// MaxRestarts bounds full session recreations per run; exceeding it
	// stops the pipeline (default 5).
	MaxRestarts int

	// RestartDelay is the wait before attempting a session recreation
	// (default 1s).
	RestartDelay time.Duration

	// SettleDelay lets the USB device settle between close and reopen
	// (default 500ms).
	SettleDelay time.Duration

	// HealthWindow is how recently a frame must have arrived for the
	// pipeline to report healthy (default 5s).
	HealthWindow time.Duration

	// StopTimeout bounds how long Stop waits for the reader goroutine
	// before releasing the device anyway (default 2s).
	StopTimeout time.Duration
}

// DefaultConfig returns the production capture configuration.
func DefaultConfig() Config {
	return Config{
		TargetRate:     16000,
		FrameSize:      1024,
		Device:         AutoDevice,
		MaxReadErrors:  10,
		ReadRetryDelay: 10 * time.Millisecond,
		MaxRestarts:    5,
		RestartDelay:   time.Second,
		SettleDelay:    500 * time.Millisecond,
		HealthWindow:   5 * time.Second,
		StopTimeout:    2 * time.Second,
	}
}

// session records the negotiated parameters of the live hardware stream.
type session struct {
	stream    Session
	device    int
	hwRate    int // negotiated hardware rate
	hwFrame   int // frame size at the hardware rate
	resampler *Resampler
}

// Capture is the real-time capture pipeline. It owns the input device and a
// dedicated reader goroutine, and restarts itself on transient failure with
// bounded retries.
type Capture struct {
	cfg    Config
	host   Host
	logger *slog.Logger

	mu        sync.Mutex
	sess      *session
	consumer  Consumer
	running   bool
	done      chan struct{}
	restarts  int
	lastFrame time.Time
}

// NewCapture creates a capture pipeline on the given host.
func NewCapture(host Host, cfg Config) *Capture {
	return &Capture{
		cfg:    cfg,
		host:   host,
		logger: log.Component("audio.capture"),
	}
}

// Start opens the input device and begins delivering frames to consumer on
// a dedicated goroutine. It returns once the device is open.
func (c *Capture) Start(consumer Consumer) error {
	if consumer == nil {
		return ErrNilConsumer
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrAlreadyRunning
	}

	sess, err := c.open()
	if err != nil {
		return err
	}

	c.sess = sess
	c.consumer = consumer
	c.running = true
	c.done = make(chan struct{})
	c.lastFrame = time.Now()

	go c.readLoop(sess, consumer, c.done)

	c.logger.Info("capture started",
		"device", sess.device,
		"hw_rate", sess.hwRate,
		"target_rate", c.cfg.TargetRate,
		"resampling", sess.resampler != nil,
	)
	return nil
}

// Stop terminates the reader loop and releases the device. It blocks until
// the reader has exited or StopTimeout elapses; the device is released
// either way.
func (c *Capture) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	done := c.done
	sess := c.sess
	c.sess = nil
	c.restarts = 0
	c.mu.Unlock()

	select {
	case <-done:
	case <-time.After(c.cfg.StopTimeout):
		c.logger.Warn("reader did not exit in time, releasing device anyway")
	}

	if sess != nil && sess.stream != nil {
		if err := sess.stream.Close(); err != nil {
			c.logger.Error("error closing stream", "error", err)
		}
	}
	c.logger.Info("capture stopped")
}

// Healthy reports whether frames have been received within the health
// window. A pipeline that exhausted its restart budget reports unhealthy.
func (c *Capture) Healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.sess == nil {
		return false
	}
	return time.Since(c.lastFrame) < c.cfg.HealthWindow
}

// open negotiates a hardware session: target rate first, native rate with
// resampling as the fallback.
func (c *Capture) open() (*session, error) {
	device := c.cfg.Device
	if device == AutoDevice {
		idx, err := c.host.FindInput(usbMicPatterns)
		if err != nil {
			return nil, fmt.Errorf("audio: selecting input device: %w", err)
		}
		device = idx
		c.logger.Info("auto-selected input device", "device", device)
	}

	stream, err := c.host.Open(device, c.cfg.TargetRate, c.cfg.FrameSize)
	if err == nil {
		return &session{stream: stream, device: device, hwRate: c.cfg.TargetRate, hwFrame: c.cfg.FrameSize}, nil
	}
	c.logger.Warn("device rejected target rate, falling back to native rate",
		"target_rate", c.cfg.TargetRate, "error", err)

	native, err := c.host.NativeRate(device)
	if err != nil {
		return nil, fmt.Errorf("audio: querying native rate: %w", err)
	}

	// Scale the hardware frame so the resampled output stays near FrameSize.
	hwFrame := c.cfg.FrameSize * native / c.cfg.TargetRate
	stream, err = c.host.Open(device, native, hwFrame)
	if err != nil {
		return nil, fmt.Errorf("audio: opening device %d at %d Hz: %w", device, native, err)
	}

	rs, err := NewResampler(native, c.cfg.TargetRate)
	if err != nil {
		stream.Close()
		return nil, err
	}

	up, down := rs.Ratio()
	c.logger.Info("resampling enabled", "hw_rate", native, "ratio", fmt.Sprintf("%d/%d", up, down))
	return &session{stream: stream, device: device, hwRate: native, hwFrame: hwFrame, resampler: rs}, nil
}

// reopen recreates the session wholesale at the previously negotiated rate.
func (c *Capture) reopen(old *session) (*session, error) {
	if old.stream != nil {
		old.stream.Close()
	}
	time.Sleep(c.cfg.SettleDelay)

	stream, err := c.host.Open(old.device, old.hwRate, old.hwFrame)
	if err != nil {
		return nil, fmt.Errorf("audio: reopening device %d: %w", old.device, err)
	}

	next := &session{stream: stream, device: old.device, hwRate: old.hwRate, hwFrame: old.hwFrame, resampler: old.resampler}
	if next.resampler != nil {
		next.resampler.Reset()
	}
	return next, nil
}

// readLoop is the dedicated capture goroutine: blocking read, resample,
// synchronous consumer callback. Transient errors retry in place; persistent
// errors recreate the session, bounded by MaxRestarts.
func (c *Capture) readLoop(sess *session, consumer Consumer, done chan struct{}) {
	defer close(done)

	consecutive := 0
	for {
		if !c.isRunning() {
			return
		}

		samples, err := sess.stream.Read()
		if err != nil {
			if !c.isRunning() {
				return
			}
			consecutive++
			metrics.CaptureErrors.Inc()
			c.logger.Warn("read error",
				"consecutive", consecutive, "max", c.cfg.MaxReadErrors, "error", err)

			if consecutive < c.cfg.MaxReadErrors {
				time.Sleep(c.cfg.ReadRetryDelay)
				continue
			}

			next, ok := c.recover(sess)
			if !ok {
				return
			}
			sess = next
			consecutive = 0
			continue
		}
		consecutive = 0

		if sess.resampler != nil {
			samples = sess.resampler.Process(samples)
			if len(samples) == 0 {
				continue
			}
		}

		c.mu.Lock()
		if !c.running {
			c.mu.Unlock()
			return
		}
		c.lastFrame = time.Now()
		c.mu.Unlock()

		metrics.FramesCaptured.Inc()
		consumer(Frame{Samples: samples, Rate: c.cfg.TargetRate})
	}
}

// recover attempts a full session recreation, honoring the restart budget.
// Returns ok=false when the pipeline must give up; it is then stopped and
// reports unhealthy rather than looping forever.
func (c *Capture) recover(old *session) (*session, bool) {
	c.mu.Lock()
	c.restarts++
	attempt := c.restarts
	c.mu.Unlock()

	if attempt > c.cfg.MaxRestarts {
		c.logger.Error("exceeded max restarts, giving up", "max", c.cfg.MaxRestarts)
		c.markFailed(old)
		return nil, false
	}

	c.logger.Warn("recreating capture session", "attempt", attempt, "max", c.cfg.MaxRestarts)
	metrics.CaptureRestarts.Inc()
	time.Sleep(c.cfg.RestartDelay)

	next, err := c.reopen(old)
	if err != nil {
		c.logger.Error("session recreation failed", "attempt", attempt, "error", err)
		return c.recover(old)
	}

	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		next.stream.Close()
		return nil, false
	}
	c.sess = next
	c.mu.Unlock()

	c.logger.Info("capture session recovered", "hw_rate", next.hwRate)
	return next, true
}

// markFailed transitions the pipeline to the stopped-unhealthy state after
// the restart budget is exhausted.
func (c *Capture) markFailed(sess *session) {
	c.mu.Lock()
	c.running = false
	c.sess = nil
	c.mu.Unlock()

	if sess.stream != nil {
		sess.stream.Close()
	}
}

func (c *Capture) isRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
