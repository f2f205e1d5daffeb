// Package playback plays the audio resource named by the endpoint's reply.
package playback

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"voiceask/internal/fault"
)

var ErrBusy = errors.New("playback already in progress")

// Handle owns one loaded audio resource.
//
// Play starts output and returns once it is running. Done yields exactly one
// value when the resource ends: nil at the end of the audio, an error if
// output broke off.
type Handle interface {
	Play(ctx context.Context) error
	Done() <-chan error
	Close() error
}

type Opener interface {
	Open(ctx context.Context, url string) (Handle, error)
}

type Controller struct {
	opener Opener
	log    zerolog.Logger

	mu   sync.Mutex
	busy bool
}

func NewController(opener Opener, log zerolog.Logger) *Controller {
	return &Controller{
		opener: opener,
		log:    log.With().Str("component", "playback").Logger(),
	}
}

// Play loads url and blocks until it has been played to the end.
func (c *Controller) Play(ctx context.Context, url string) error {
	if c.opener == nil {
		return fault.New(fault.PlaybackUnsupported, "audio playback is not supported on this platform")
	}

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	c.busy = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.busy = false
		c.mu.Unlock()
	}()

	c.log.Info().Str("url", url).Msg("loading audio")
	h, err := c.opener.Open(ctx, url)
	if err != nil {
		return fault.Ensure(fault.PlaybackUnsupported, err, "open audio")
	}
	defer func() {
		if err := h.Close(); err != nil {
			c.log.Warn().Err(err).Msg("close audio")
		}
	}()

	if err := h.Play(ctx); err != nil {
		return fault.Ensure(fault.PlaybackUnsupported, err, "start playback")
	}
	c.log.Info().Msg("playback started")

	select {
	case err := <-h.Done():
		if err != nil {
			return fault.Ensure(fault.PlaybackFailed, err, "playback error")
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	c.log.Info().Msg("playback finished")
	return nil
}
