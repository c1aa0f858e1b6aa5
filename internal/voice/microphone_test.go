package voice

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

type fakeDevice struct {
	mu       sync.Mutex
	startErr error
	started  int
	stopped  int
	stopCh   chan struct{}
}

func newFakeDevice() *fakeDevice { return &fakeDevice{stopCh: make(chan struct{})} }

func (d *fakeDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startErr != nil {
		return d.startErr
	}
	d.started++
	return nil
}

func (d *fakeDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped++
	if d.stopped == 1 {
		close(d.stopCh)
	}
	return nil
}

func (d *fakeDevice) Stream(w io.Writer) error {
	if _, err := w.Write([]byte{1, 2}); err != nil {
		return err
	}
	<-d.stopCh
	return errors.New("stream stopped")
}

func (d *fakeDevice) counts() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started, d.stopped
}

func TestMicrophoneOpenFallsBackToNextRate(t *testing.T) {
	dev := newFakeDevice()
	var tried []int
	mic := &Microphone{
		rates: []int{16000, 48000},
		open: func(rate int) (micDevice, error) {
			tried = append(tried, rate)
			if rate == 16000 {
				return nil, errors.New("invalid sample rate")
			}
			return dev, nil
		},
	}

	capture, err := mic.Open()
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if capture.Rate != 48000 {
		t.Fatalf("expected 48000 Hz, got %d", capture.Rate)
	}
	if len(tried) != 2 {
		t.Fatalf("expected two attempts, got %v", tried)
	}
}

func TestMicrophoneOpenNoDevice(t *testing.T) {
	mic := &Microphone{
		rates: []int{16000},
		open:  func(int) (micDevice, error) { return nil, errors.New("no default input device") },
	}
	_, err := mic.Open()
	if !errors.Is(err, ErrNoMicrophone) {
		t.Fatalf("expected ErrNoMicrophone, got %v", err)
	}
}

func TestMicrophoneStartFailureStopsDevice(t *testing.T) {
	dev := newFakeDevice()
	dev.startErr = errors.New("permission denied")
	mic := &Microphone{rates: []int{16000}, open: func(int) (micDevice, error) { return dev, nil }}

	if _, err := mic.Open(); !errors.Is(err, ErrNoMicrophone) {
		t.Fatalf("expected ErrNoMicrophone, got %v", err)
	}
	if _, stopped := dev.counts(); stopped != 1 {
		t.Fatalf("expected device stopped after failed start, got %d", stopped)
	}
}

func TestMicrophoneProbeReleasesDevice(t *testing.T) {
	dev := newFakeDevice()
	mic := &Microphone{rates: []int{16000}, open: func(int) (micDevice, error) { return dev, nil }}

	if err := mic.Probe(context.Background()); err != nil {
		t.Fatalf("Probe returned error: %v", err)
	}
	started, stopped := dev.counts()
	if started != 1 || stopped != 1 {
		t.Fatalf("expected start/stop once, got %d/%d", started, stopped)
	}
}

func TestCaptureStreamStopsOnCancel(t *testing.T) {
	dev := newFakeDevice()
	capture := &Capture{dev: dev, Rate: 16000}
	ctx, cancel := context.WithCancel(context.Background())

	var out bytes.Buffer
	done := make(chan struct{})
	go func() {
		capture.Stream(ctx, &lockedBuffer{buf: &out})
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not stop after cancel")
	}
	if _, stopped := dev.counts(); stopped != 1 {
		t.Fatalf("expected one device stop, got %d", stopped)
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf *bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

type scriptedStreamer struct {
	errs  []error
	calls int
}

func (s *scriptedStreamer) Stream(io.Writer) error {
	err := s.errs[s.calls]
	s.calls++
	return err
}

func TestStreamWithRetryRestartsOnOverflow(t *testing.T) {
	streamer := &scriptedStreamer{errs: []error{
		errors.New("Input overflowed"),
		errors.New("Input overflowed"),
		nil,
	}}
	waits := 0
	StreamWithRetry(context.Background(), streamer, io.Discard, func(time.Duration) { waits++ }, func(string, ...any) {})

	if streamer.calls != 3 {
		t.Fatalf("expected 3 stream attempts, got %d", streamer.calls)
	}
	if waits != 2 {
		t.Fatalf("expected 2 waits, got %d", waits)
	}
}

func TestStreamWithRetryStopsOnOtherError(t *testing.T) {
	streamer := &scriptedStreamer{errs: []error{errors.New("device unplugged"), nil}}
	var logged []string
	StreamWithRetry(context.Background(), streamer, io.Discard, func(time.Duration) {}, func(format string, _ ...any) {
		logged = append(logged, format)
	})

	if streamer.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", streamer.calls)
	}
	if len(logged) != 1 {
		t.Fatalf("expected the error to be logged, got %v", logged)
	}
}

func TestStreamWithRetryCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	streamer := &scriptedStreamer{errs: []error{nil}}
	StreamWithRetry(ctx, streamer, io.Discard, func(time.Duration) {}, func(string, ...any) {})
	if streamer.calls != 0 {
		t.Fatalf("expected no stream attempts, got %d", streamer.calls)
	}
}
