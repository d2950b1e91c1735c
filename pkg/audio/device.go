package audio

import "errors"

// Sentinel errors for the capture pipeline.
var (
	// ErrNoInputDevice is returned when the host has no usable input device.
	ErrNoInputDevice = errors.New("audio: no input device found")

	// ErrAlreadyRunning is returned when Start is called on a running pipeline.
	ErrAlreadyRunning = errors.New("audio: capture already running")

	// ErrNilConsumer is returned when Start is called without a consumer.
	ErrNilConsumer = errors.New("audio: nil consumer")

	// ErrUnhealthy is returned when the pipeline has given up after
	// exceeding the restart budget.
	ErrUnhealthy = errors.New("audio: capture pipeline unhealthy")
)

// AutoDevice selects the input device automatically (USB mic by name
// pattern, falling back to the host default).
const AutoDevice = -1

// Host abstracts the audio hardware layer so the capture pipeline can be
// exercised against a fake in tests. The production implementation sits on
// PortAudio.
type Host interface {
	// FindInput returns the index of an input device whose name matches
	// one of the patterns, or the host default input if none match.
	FindInput(patterns []string) (index int, err error)

	// NativeRate reports the device's default sample rate in Hz.
	NativeRate(index int) (int, error)

	// Open opens a mono PCM16 input session at the given rate and frame
	// size. Open fails if the device cannot run at that rate; callers fall
	// back to the native rate and resample.
	Open(index, rate, frameSize int) (Session, error)

	// Close releases the host layer.
	Close() error
}

// Session is one live hardware input stream. Exactly one session is open at
// a time; on unrecoverable error it is closed and recreated wholesale, never
// partially repaired.
type Session interface {
	// Read blocks until one hardware frame is available and returns it.
	Read() ([]int16, error)

	// Close stops the stream and releases the device.
	Close() error
}

// usbMicPatterns are the device-name fragments tried during auto-detection.
// USB conference mics on the robot enumerate under these names.
var usbMicPatterns = []string{"USB PnP Sound", "USB Audio", "USB Microphone"}
