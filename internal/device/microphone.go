// Package device implements the microphone and speaker on top of PortAudio.
package device

import (
	"context"
	"errors"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"voiceask/internal/capture"
	"voiceask/internal/fault"
)

// consecutive failed reads before the device is considered gone
const maxReadErrors = 50

type MicConfig struct {
	SampleRate      int
	Channels        int
	FramesPerBuffer int
	TempDir         string
}

// Microphone records from the default input device and hands the clip to
// the capture controller as a single WAV fragment.
type Microphone struct {
	cfg MicConfig
	log zerolog.Logger
}

func NewMicrophone(cfg MicConfig, log zerolog.Logger) *Microphone {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = 1024
	}
	return &Microphone{
		cfg: cfg,
		log: log.With().Str("component", "microphone").Logger(),
	}
}

func (m *Microphone) Open(ctx context.Context) (capture.Recorder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fault.Wrap(fault.UnsupportedPlatform, err, "audio system unavailable")
	}

	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		_ = portaudio.Terminate()
		return nil, openError(err, "no microphone found")
	}

	in := make([]int16, m.cfg.FramesPerBuffer*m.cfg.Channels)
	stream, err := portaudio.OpenDefaultStream(m.cfg.Channels, 0, float64(m.cfg.SampleRate), m.cfg.FramesPerBuffer, in)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, openError(err, "open microphone")
	}
	m.log.Info().
		Str("device", dev.Name).
		Int("sample_rate", m.cfg.SampleRate).
		Int("channels", m.cfg.Channels).
		Msg("microphone opened")

	return &recorder{
		cfg:    m.cfg,
		log:    m.log,
		stream: stream,
		in:     in,
		frags:  make(chan []byte, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// PortAudio has no error code for a denied microphone; a denial reaches us
// as a host or device error and is reported as DeviceUnavailable.
func openError(err error, msg string) error {
	return fault.Wrap(fault.DeviceUnavailable, err, msg)
}

// readOutcome reports whether the input buffer holds samples after a Read
// and whether err counts toward giving up on the device. An overflow drops
// older input but the buffer itself is valid.
func readOutcome(err error) (keep, hard bool) {
	switch {
	case err == nil:
		return true, false
	case errors.Is(err, portaudio.InputOverflowed):
		return true, false
	default:
		return false, true
	}
}

type recorder struct {
	cfg    MicConfig
	log    zerolog.Logger
	stream *portaudio.Stream
	in     []int16

	frags chan []byte
	stop  chan struct{}
	done  chan struct{}

	// owned by the read loop until done is closed
	samples []int16
	readErr error

	started     bool
	stopOnce    sync.Once
	stopErr     error
	releaseOnce sync.Once
	releaseErr  error
}

func (r *recorder) Start() error {
	if err := r.stream.Start(); err != nil {
		return openError(err, "start microphone")
	}
	r.started = true
	go r.loop()
	return nil
}

func (r *recorder) loop() {
	defer close(r.done)
	errs := 0
	for {
		select {
		case <-r.stop:
			return
		default:
		}
		err := r.stream.Read()
		keep, hard := readOutcome(err)
		if err != nil {
			r.log.Debug().Err(err).Bool("kept", keep).Msg("microphone read")
		}
		if hard {
			errs++
			if errs >= maxReadErrors {
				r.readErr = err
				close(r.frags)
				return
			}
			continue
		}
		errs = 0
		if keep {
			r.samples = append(r.samples, r.in...)
		}
	}
}

func (r *recorder) Fragments() <-chan []byte { return r.frags }

// Stop ends the read loop and emits the recording as one WAV fragment.
func (r *recorder) Stop() error {
	r.stopOnce.Do(func() {
		if !r.started {
			close(r.frags)
			return
		}
		close(r.stop)
		<-r.done
		_ = r.stream.Stop()

		if r.readErr != nil {
			r.stopErr = fault.Wrap(fault.DeviceUnavailable, r.readErr, "microphone stopped delivering audio")
			return
		}

		data, err := EncodeWAV(r.samples, r.cfg.SampleRate, r.cfg.Channels, r.cfg.TempDir)
		if err != nil {
			close(r.frags)
			r.stopErr = err
			return
		}
		r.log.Debug().Int("samples", len(r.samples)).Int("bytes", len(data)).Msg("recording encoded")
		r.frags <- data
		close(r.frags)
	})
	return r.stopErr
}

func (r *recorder) Release() error {
	r.releaseOnce.Do(func() {
		if err := r.stream.Close(); err != nil {
			r.releaseErr = err
		}
		if err := portaudio.Terminate(); err != nil && r.releaseErr == nil {
			r.releaseErr = err
		}
	})
	return r.releaseErr
}
