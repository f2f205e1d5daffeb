package device

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"voiceask/internal/playback"
)

// Speaker opens the default output device for playback.
type Speaker struct {
	framesPerBuffer int
	log             zerolog.Logger
}

func NewSpeaker(framesPerBuffer int, log zerolog.Logger) *Speaker {
	if framesPerBuffer <= 0 {
		framesPerBuffer = 1024
	}
	return &Speaker{
		framesPerBuffer: framesPerBuffer,
		log:             log.With().Str("component", "speaker").Logger(),
	}
}

func (s *Speaker) OpenSink(sampleRate, channels int) (playback.Sink, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid output format %d Hz x%d", sampleRate, channels)
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("audio system unavailable: %w", err)
	}

	out := make([]int16, s.framesPerBuffer*channels)
	stream, err := portaudio.OpenDefaultStream(0, channels, float64(sampleRate), s.framesPerBuffer, out)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("open speaker: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("start speaker: %w", err)
	}
	s.log.Debug().Int("sample_rate", sampleRate).Int("channels", channels).Msg("speaker opened")
	return &sink{stream: stream, out: out}, nil
}

type sink struct {
	stream *portaudio.Stream
	out    []int16

	closeOnce sync.Once
	closeErr  error
}

// Write copies samples into the stream buffer one period at a time; a short
// final period is padded with silence.
func (k *sink) Write(samples []int16) error {
	for len(samples) > 0 {
		n := copy(k.out, samples)
		for i := n; i < len(k.out); i++ {
			k.out[i] = 0
		}
		if err := k.stream.Write(); err != nil {
			return err
		}
		samples = samples[n:]
	}
	return nil
}

func (k *sink) Close() error {
	k.closeOnce.Do(func() {
		_ = k.stream.Stop()
		k.closeErr = k.stream.Close()
		if err := portaudio.Terminate(); err != nil && k.closeErr == nil {
			k.closeErr = err
		}
	})
	return k.closeErr
}
