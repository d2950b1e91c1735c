package audio

import (
	"fmt"
	"strings"

	"github.com/gordonklaus/portaudio"
)

// paHost implements Host on PortAudio. One paHost owns the PortAudio
// runtime; Close terminates it.
type paHost struct{}

// NewHost initializes PortAudio and returns the production audio host.
func NewHost() (Host, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("audio: initializing portaudio: %w", err)
	}
	return &paHost{}, nil
}

func (h *paHost) FindInput(patterns []string) (int, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return 0, fmt.Errorf("audio: listing devices: %w", err)
	}

	for i, dev := range devices {
		if dev.MaxInputChannels == 0 {
			continue
		}
		for _, p := range patterns {
			if strings.Contains(strings.ToLower(dev.Name), strings.ToLower(p)) {
				return i, nil
			}
		}
	}

	// No pattern match: fall back to the host default input device.
	def, err := portaudio.DefaultInputDevice()
	if err == nil {
		for i, dev := range devices {
			if dev == def {
				return i, nil
			}
		}
	}

	// Last resort: first device with input channels.
	for i, dev := range devices {
		if dev.MaxInputChannels > 0 {
			return i, nil
		}
	}
	return 0, ErrNoInputDevice
}

func (h *paHost) NativeRate(index int) (int, error) {
	dev, err := h.device(index)
	if err != nil {
		return 0, err
	}
	return int(dev.DefaultSampleRate), nil
}

func (h *paHost) Open(index, rate, frameSize int) (Session, error) {
	dev, err := h.device(index)
	if err != nil {
		return nil, err
	}

	buf := make([]int16, frameSize)
	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(rate)
	params.FramesPerBuffer = frameSize

	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("audio: opening stream on %q at %d Hz: %w", dev.Name, rate, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("audio: starting stream: %w", err)
	}

	return &paSession{stream: stream, buf: buf}, nil
}

func (h *paHost) Close() error {
	return portaudio.Terminate()
}

func (h *paHost) device(index int) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("audio: listing devices: %w", err)
	}
	if index < 0 || index >= len(devices) {
		return nil, fmt.Errorf("audio: device index %d out of range (%d devices)", index, len(devices))
	}
	return devices[index], nil
}

// paSession wraps a live PortAudio input stream.
type paSession struct {
	stream *portaudio.Stream
	buf    []int16
}

func (s *paSession) Read() ([]int16, error) {
	if err := s.stream.Read(); err != nil {
		return nil, err
	}
	// Copy out: the stream refills buf on the next Read, and frames are
	// immutable once delivered.
	out := make([]int16, len(s.buf))
	copy(out, s.buf)
	return out, nil
}

func (s *paSession) Close() error {
	if err := s.stream.Stop(); err != nil {
		s.stream.Close()
		return err
	}
	return s.stream.Close()
}
