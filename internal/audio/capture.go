// Package audio handles microphone capture, WAV decoding and resampling.
package audio

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	apperrors "github.com/GriffinCanCode/private-scribe/backend/platform/internal/errors"
)

// Frame is one block of mono samples delivered by a capture device.
type Frame struct {
	Data       []float32
	SampleRate int
	Timestamp  int64
}

// CaptureConfig selects the input device and block size.
type CaptureConfig struct {
	SampleRate      int
	FramesPerBuffer int
	Buffer          int      // output channel capacity
	Device          string   // substring match; empty picks the best microphone
	ExcludedDevices []string // substring matches never opened
}

// Capturer captures a single microphone through portaudio.
type Capturer struct {
	cfg     CaptureConfig
	outCh   chan Frame
	mu      sync.Mutex
	running bool
	stream  *portaudio.Stream
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewCapturer creates a capturer; portaudio is initialized on Start.
func NewCapturer(cfg CaptureConfig) *Capturer {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = TargetRate
	}
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = 1024
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	return &Capturer{cfg: cfg}
}

// Frames returns the channel of captured frames for the current run.
// It is closed when capture stops.
func (c *Capturer) Frames() <-chan Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outCh
}

// Start opens the selected device and begins delivering frames.
func (c *Capturer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return apperrors.Wrap(err, apperrors.AudioCaptureFailed, "failed to initialize portaudio")
	}
	dev, err := c.selectDevice()
	if err != nil {
		_ = portaudio.Terminate()
		return err
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(c.cfg.SampleRate),
		FramesPerBuffer: c.cfg.FramesPerBuffer,
	}
	buf := make([]float32, c.cfg.FramesPerBuffer)
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		_ = portaudio.Terminate()
		return apperrors.Wrapf(err, apperrors.AudioCaptureFailed, "failed to open %q", dev.Name)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		_ = portaudio.Terminate()
		return apperrors.Wrapf(err, apperrors.AudioCaptureFailed, "failed to start %q", dev.Name)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.stream = stream
	c.cancel = cancel
	c.outCh = make(chan Frame, c.cfg.Buffer)
	c.done = make(chan struct{})
	c.running = true
	slog.Info("started audio capture", "device", dev.Name, "sample_rate", c.cfg.SampleRate)

	go c.readLoop(runCtx, stream, buf, c.outCh, c.done, dev.Name)
	return nil
}

func (c *Capturer) readLoop(ctx context.Context, stream *portaudio.Stream, buf []float32, out chan Frame, done chan struct{}, device string) {
	defer close(done)
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := stream.Read(); err != nil {
			if ctx.Err() == nil {
				slog.Warn("audio read error", "device", device, "error", err)
			}
			return
		}

		frame := Frame{
			Data:       append([]float32(nil), buf...),
			SampleRate: c.cfg.SampleRate,
			Timestamp:  time.Now().UnixNano(),
		}
		select {
		case out <- frame:
		default:
			slog.Debug("audio buffer full, dropping frame", "device", device)
		}
	}
}

// Stop ends capture and closes the frame channel. It is safe to call
// when not running.
func (c *Capturer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	stream, cancel, done := c.stream, c.cancel, c.done
	c.stream, c.cancel = nil, nil
	c.mu.Unlock()

	cancel()
	_ = stream.Stop()
	<-done
	_ = stream.Close()
	_ = portaudio.Terminate()
	slog.Info("stopped audio capture")
}

func (c *Capturer) selectDevice() (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.AudioCaptureFailed, "failed to list devices")
	}

	var best *portaudio.DeviceInfo
	for _, dev := range devices {
		if dev.MaxInputChannels < 1 || c.isExcluded(dev.Name) {
			continue
		}
		if c.cfg.Device != "" {
			if containsFold(dev.Name, c.cfg.Device) {
				return dev, nil
			}
			continue
		}
		if classifyDevice(dev.Name) != sourceMic {
			continue
		}
		if best == nil || preferDevice(dev.Name, best.Name) {
			best = dev
		}
	}
	if c.cfg.Device != "" {
		return nil, apperrors.Newf(apperrors.AudioCaptureFailed, "no input device matches %q", c.cfg.Device)
	}
	if best != nil {
		return best, nil
	}

	def, err := portaudio.DefaultInputDevice()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.AudioCaptureFailed, "no input device available")
	}
	return def, nil
}

const (
	sourceMic      = "mic"
	sourceLoopback = "loopback"
)

// classifyDevice sorts device names into microphones and loopback
// devices; unknown names return "".
func classifyDevice(name string) string {
	for _, kw := range []string{"blackhole", "vb-cable", "loopback", "monitor", "soundflower"} {
		if containsFold(name, kw) {
			return sourceLoopback
		}
	}
	for _, kw := range []string{"microphone", "input", "mic", "built-in"} {
		if containsFold(name, kw) {
			return sourceMic
		}
	}
	return ""
}

func (c *Capturer) isExcluded(name string) bool {
	for _, ex := range c.cfg.ExcludedDevices {
		if containsFold(name, ex) {
			return true
		}
	}
	return false
}

// preferDevice reports whether name beats current; built-in mics win.
func preferDevice(name, current string) bool {
	for _, p := range []string{"macbook", "built-in"} {
		if containsFold(name, p) && !containsFold(current, p) {
			return true
		}
	}
	return false
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
