// Package capture records one fixed-length clip from a microphone and
// assembles it into a single upload payload.
//
// The platform side sits behind [Microphone] and [Recorder]; the
// [Controller] owns timing, fragment ordering and device release.
package capture

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"voiceask/internal/fault"
)

// Payload is the recorded clip, passed through in the recorder's container.
type Payload struct {
	Data        []byte
	ContentType string
	Filename    string
}

// Microphone requests access to an input device.
type Microphone interface {
	Open(ctx context.Context) (Recorder, error)
}

// Recorder is an opened input stream.
//
// Fragments delivers opaque chunks in capture order and is closed by the
// recorder once Stop has flushed the last one. Release stops every
// underlying track; it is called exactly once per opened Recorder.
type Recorder interface {
	Start() error
	Fragments() <-chan []byte
	Stop() error
	Release() error
}

type Config struct {
	Duration    time.Duration
	ContentType string
	Filename    string
}

type Controller struct {
	cfg Config
	mic Microphone
	log zerolog.Logger
}

func NewController(cfg Config, mic Microphone, log zerolog.Logger) *Controller {
	if cfg.Duration <= 0 {
		cfg.Duration = 5 * time.Second
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "audio/wav"
	}
	if cfg.Filename == "" {
		cfg.Filename = "recording.wav"
	}
	return &Controller{
		cfg: cfg,
		mic: mic,
		log: log.With().Str("component", "capture").Logger(),
	}
}

func (c *Controller) Duration() time.Duration { return c.cfg.Duration }

// Capture opens the microphone, records for the configured duration and
// returns the concatenated fragments. onRecording runs once recording has
// begun. The recorder is released on every return path.
func (c *Controller) Capture(ctx context.Context, onRecording func(time.Duration)) (Payload, error) {
	if c.mic == nil {
		return Payload{}, fault.New(fault.UnsupportedPlatform, "audio recording is not supported on this platform")
	}

	rec, err := c.mic.Open(ctx)
	if err != nil {
		return Payload{}, fault.Ensure(fault.DeviceUnavailable, err, "microphone unavailable")
	}
	release := sync.OnceFunc(func() {
		if err := rec.Release(); err != nil {
			c.log.Warn().Err(err).Msg("release microphone")
		}
	})
	defer release()

	if err := rec.Start(); err != nil {
		return Payload{}, fault.Ensure(fault.DeviceUnavailable, err, "start recording")
	}
	c.log.Info().Dur("duration", c.cfg.Duration).Msg("recording started")
	if onRecording != nil {
		onRecording(c.cfg.Duration)
	}

	var buf Buffer
	frags := rec.Fragments()
	timer := time.NewTimer(c.cfg.Duration)
	defer timer.Stop()

	recording := true
	for recording {
		select {
		case f, ok := <-frags:
			if !ok {
				return Payload{}, fault.New(fault.DeviceUnavailable, "recorder stopped before the recording finished")
			}
			c.append(&buf, f)
		case <-timer.C:
			recording = false
		case <-ctx.Done():
			_ = rec.Stop()
			return Payload{}, ctx.Err()
		}
	}

	c.log.Debug().Msg("stopping recording")
	if err := rec.Stop(); err != nil {
		return Payload{}, fault.Ensure(fault.DeviceUnavailable, err, "stop recording")
	}

	// the recorder flushes what it still holds, then closes the channel
	for draining := true; draining; {
		select {
		case f, ok := <-frags:
			if !ok {
				draining = false
				continue
			}
			c.append(&buf, f)
		case <-ctx.Done():
			return Payload{}, ctx.Err()
		}
	}

	p := Payload{
		Data:        buf.Seal(),
		ContentType: c.cfg.ContentType,
		Filename:    c.cfg.Filename,
	}
	if len(p.Data) == 0 {
		c.log.Warn().Msg("recording produced no audio data")
	}
	c.log.Info().
		Int("fragments", buf.Len()).
		Int("bytes", len(p.Data)).
		Str("content_type", p.ContentType).
		Msg("recording assembled")
	return p, nil
}

func (c *Controller) append(buf *Buffer, f []byte) {
	// Seal only happens after both loops; Append cannot fail here.
	_ = buf.Append(f)
	c.log.Debug().Int("bytes", len(f)).Msg("audio fragment received")
}
