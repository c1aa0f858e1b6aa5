package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	microphone "github.com/deepgram/deepgram-go-sdk/v3/pkg/audio/microphone"
)

var ErrNoMicrophone = errors.New("no usable microphone")

// DefaultSampleRates are tried in order when opening the input device.
var DefaultSampleRates = []int{16000, 48000, 44100, 32000, 24000}

type micDevice interface {
	Start() error
	Stop() error
	Stream(w io.Writer) error
}

// Microphone opens the default input device through PortAudio. Callers must
// run microphone.Initialize before use and microphone.Teardown at exit.
type Microphone struct {
	rates []int
	open  func(rate int) (micDevice, error)
}

func NewMicrophone(rates []int) *Microphone {
	if len(rates) == 0 {
		rates = DefaultSampleRates
	}
	return &Microphone{rates: rates, open: openDeepgramMic}
}

func openDeepgramMic(rate int) (micDevice, error) {
	mic, err := microphone.New(microphone.AudioConfig{InputChannels: 1, SamplingRate: float32(rate)})
	if err != nil {
		return nil, err
	}
	return mic, nil
}

// Probe opens and starts the device, then releases it immediately.
func (m *Microphone) Probe(context.Context) error {
	capture, err := m.Open()
	if err != nil {
		return err
	}
	return capture.Close()
}

// Open starts capturing at the first sample rate the device accepts.
func (m *Microphone) Open() (*Capture, error) {
	var errs []error
	for _, rate := range m.rates {
		dev, err := m.open(rate)
		if err != nil {
			errs = append(errs, fmt.Errorf("open at %d Hz: %w", rate, err))
			continue
		}
		if err := dev.Start(); err != nil {
			_ = dev.Stop()
			errs = append(errs, fmt.Errorf("start at %d Hz: %w", rate, err))
			continue
		}
		return &Capture{dev: dev, Rate: rate}, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrNoMicrophone, errors.Join(errs...))
}

// Capture is a started input device.
type Capture struct {
	dev  micDevice
	Rate int

	closeOnce sync.Once
	closeErr  error
}

// Stream writes PCM16-LE to w until ctx is done or the device fails. The
// device is closed on return.
func (c *Capture) Stream(ctx context.Context, w io.Writer) {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()
	defer func() { _ = c.Close() }()
	StreamWithRetry(ctx, c.dev, w, time.Sleep, func(format string, args ...any) {
		slog.Warn(fmt.Sprintf(format, args...))
	})
}

func (c *Capture) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.dev.Stop()
	})
	return c.closeErr
}

type micStreamer interface {
	Stream(writer io.Writer) error
}

// StreamWithRetry restarts the stream after input overflows, which PortAudio
// reports when the reader falls behind. Any other error ends streaming.
func StreamWithRetry(
	ctx context.Context,
	streamer micStreamer,
	writer io.Writer,
	wait func(time.Duration),
	logf func(string, ...any),
) {
	for {
		if ctx.Err() != nil {
			return
		}

		err := streamer.Stream(writer)
		if err == nil || ctx.Err() != nil {
			return
		}

		if strings.Contains(strings.ToLower(err.Error()), "overflow") {
			logf("mic input overflow, restarting stream")
			wait(250 * time.Millisecond)
			continue
		}

		logf("mic stream error: %v", err)
		return
	}
}
