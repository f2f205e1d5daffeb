package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"voiceask/internal/fault"
)

// Sink is an opened audio output taking interleaved 16-bit samples.
type Sink interface {
	Write(samples []int16) error
	Close() error
}

type SinkOpener interface {
	OpenSink(sampleRate, channels int) (Sink, error)
}

type HTTPConfig struct {
	Timeout         time.Duration
	FramesPerBuffer int
}

// HTTPOpener fetches the audio resource over HTTP, decodes it and plays it
// through a Sink.
type HTTPOpener struct {
	cfg   HTTPConfig
	http  *http.Client
	sinks SinkOpener
	log   zerolog.Logger

	sf singleflight.Group
}

func NewHTTPOpener(cfg HTTPConfig, sinks SinkOpener, log zerolog.Logger) *HTTPOpener {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = 1024
	}
	return &HTTPOpener{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
		},
		sinks: sinks,
		log:   log.With().Str("component", "audio_fetch").Logger(),
	}
}

func (o *HTTPOpener) Open(ctx context.Context, url string) (Handle, error) {
	if o.sinks == nil {
		return nil, fault.New(fault.PlaybackUnsupported, "no audio output available")
	}

	data, err := o.fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	pcm, err := Decode(data)
	if err != nil {
		return nil, fault.Wrap(fault.PlaybackUnsupported, err, "cannot decode audio")
	}
	o.log.Debug().
		Int("sample_rate", pcm.SampleRate).
		Int("channels", pcm.Channels).
		Int("frames", pcm.Frames()).
		Msg("audio decoded")

	sink, err := o.sinks.OpenSink(pcm.SampleRate, pcm.Channels)
	if err != nil {
		return nil, fault.Wrap(fault.PlaybackUnsupported, err, "open audio output")
	}
	return newStream(pcm, sink, o.cfg.FramesPerBuffer), nil
}

// fetch shares one GET among concurrent callers of the same url. The GET
// is detached from every caller's cancellation and bounded by the client
// timeout; each caller stops waiting when its own ctx is done.
func (o *HTTPOpener) fetch(ctx context.Context, url string) ([]byte, error) {
	ch := o.sf.DoChan(url, func() (any, error) {
		return o.get(context.WithoutCancel(ctx), url)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		data := res.Val.([]byte)
		o.log.Info().Str("url", url).Int("bytes", len(data)).Bool("shared", res.Shared).Msg("audio fetched")
		return data, nil
	case <-ctx.Done():
		return nil, fault.Wrap(fault.PlaybackFailed, ctx.Err(), "fetch audio")
	}
}

func (o *HTTPOpener) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fault.Wrap(fault.PlaybackFailed, err, "build audio request")
	}
	resp, err := o.http.Do(req)
	if err != nil {
		return nil, fault.Wrap(fault.PlaybackFailed, err, "fetch audio")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fault.New(fault.PlaybackFailed, fmt.Sprintf("fetch audio: status %d: %s", resp.StatusCode, string(b)))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.Wrap(fault.PlaybackFailed, err, "read audio")
	}
	return data, nil
}

var errClosed = errors.New("audio handle closed")

// stream writes decoded PCM to a sink in FramesPerBuffer chunks.
type stream struct {
	pcm   PCM
	sink  Sink
	chunk int

	done     chan error
	quit     chan struct{}
	started  chan struct{}
	finished chan struct{}

	startOnce sync.Once
	closeOnce sync.Once
	closeErr  error
}

func newStream(pcm PCM, sink Sink, frames int) *stream {
	return &stream{
		pcm:      pcm,
		sink:     sink,
		chunk:    frames * max(pcm.Channels, 1),
		done:     make(chan error, 1),
		quit:     make(chan struct{}),
		started:  make(chan struct{}),
		finished: make(chan struct{}),
	}
}

func (s *stream) Play(ctx context.Context) error {
	select {
	case <-s.quit:
		return errClosed
	default:
	}
	started := false
	s.startOnce.Do(func() {
		started = true
		close(s.started)
		go s.run(ctx)
	})
	if !started {
		return errors.New("audio already playing")
	}
	return nil
}

func (s *stream) run(ctx context.Context) {
	defer close(s.finished)
	samples := s.pcm.Samples
	for len(samples) > 0 {
		select {
		case <-s.quit:
			s.done <- errClosed
			return
		case <-ctx.Done():
			s.done <- ctx.Err()
			return
		default:
		}
		n := min(s.chunk, len(samples))
		if err := s.sink.Write(samples[:n]); err != nil {
			s.done <- fmt.Errorf("write audio: %w", err)
			return
		}
		samples = samples[n:]
	}
	s.done <- nil
}

func (s *stream) Done() <-chan error { return s.done }

// Close stops the writer, waits for it and closes the sink.
func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.quit)
		s.startOnce.Do(func() {}) // no writer after this point
		select {
		case <-s.started:
			<-s.finished
		default:
		}
		s.closeErr = s.sink.Close()
	})
	return s.closeErr
}
