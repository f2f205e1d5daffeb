// Package mock provides in-memory playback fakes for tests.
package mock

import (
	"context"
	"sync"

	"voiceask/internal/playback"
)

// Opener hands out Handle on every Open unless OpenError is set.
type Opener struct {
	OpenError error
	Handle    *Handle

	mu            sync.Mutex
	CallCountOpen int
	URLs          []string
}

func (o *Opener) Open(_ context.Context, url string) (playback.Handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.CallCountOpen++
	o.URLs = append(o.URLs, url)
	if o.OpenError != nil {
		return nil, o.OpenError
	}
	if o.Handle == nil {
		o.Handle = &Handle{}
	}
	return o.Handle, nil
}

// Handle ends with EndError as soon as Play is called, or once Hold is
// closed when Hold is set.
type Handle struct {
	PlayError  error
	EndError   error
	CloseError error
	Hold       chan struct{}

	mu             sync.Mutex
	done           chan error
	CallCountPlay  int
	CallCountClose int
}

func (h *Handle) ch() chan error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done == nil {
		h.done = make(chan error, 1)
	}
	return h.done
}

func (h *Handle) Play(context.Context) error {
	h.mu.Lock()
	h.CallCountPlay++
	h.mu.Unlock()
	if h.PlayError != nil {
		return h.PlayError
	}
	done := h.ch()
	if h.Hold == nil {
		done <- h.EndError
		return nil
	}
	go func() {
		<-h.Hold
		done <- h.EndError
	}()
	return nil
}

func (h *Handle) Done() <-chan error { return h.ch() }

func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.CallCountClose++
	return h.CloseError
}

func (h *Handle) Plays() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.CallCountPlay
}

func (h *Handle) Closes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.CallCountClose
}

// Sink records every sample written to it.
type Sink struct {
	WriteError error
	CloseError error

	mu      sync.Mutex
	Samples []int16
	Writes  int
	Closed  bool
}

func (s *Sink) Write(samples []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteError != nil {
		return s.WriteError
	}
	s.Writes++
	s.Samples = append(s.Samples, samples...)
	return nil
}

func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return s.CloseError
}

// SinkOpener returns Sink for every OpenSink call.
type SinkOpener struct {
	OpenError error
	Sink      *Sink

	mu         sync.Mutex
	SampleRate int
	Channels   int
}

func (o *SinkOpener) OpenSink(sampleRate, channels int) (playback.Sink, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.SampleRate, o.Channels = sampleRate, channels
	if o.OpenError != nil {
		return nil, o.OpenError
	}
	if o.Sink == nil {
		o.Sink = &Sink{}
	}
	return o.Sink, nil
}
