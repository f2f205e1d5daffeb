// Package mock provides in-memory implementations of [capture.Microphone]
// and [capture.Recorder] for tests.
//
// Set the exported fields before use; inspect the CallCount* fields after.
//
//	mic := &mock.Microphone{NewRecorder: func() *mock.Recorder {
//	    return &mock.Recorder{Live: [][]byte{[]byte("a")}, Flush: [][]byte{[]byte("b")}}
//	}}
//	ctrl := capture.NewController(capture.Config{Duration: 50 * time.Millisecond}, mic, zerolog.Nop())
package mock

import (
	"context"
	"sync"
	"time"

	"voiceask/internal/capture"
)

// Microphone is a mock [capture.Microphone].
type Microphone struct {
	mu sync.Mutex

	// OpenError is returned by Open when non-nil.
	OpenError error

	// NewRecorder builds the recorder handed out by each Open. Defaults to an
	// empty Recorder.
	NewRecorder func() *Recorder

	CallCountOpen int

	// Recorders holds every recorder handed out, in order.
	Recorders []*Recorder
}

func (m *Microphone) Open(_ context.Context) (capture.Recorder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCountOpen++
	if m.OpenError != nil {
		return nil, m.OpenError
	}
	r := &Recorder{}
	if m.NewRecorder != nil {
		r = m.NewRecorder()
	}
	m.Recorders = append(m.Recorders, r)
	return r, nil
}

// Recorder is a mock [capture.Recorder].
//
// Live fragments are delivered after Start, each preceded by Interval.
// Flush fragments are delivered by Stop, after which the channel closes.
type Recorder struct {
	Live     [][]byte
	Interval time.Duration
	Flush    [][]byte

	StartError   error
	StopError    error
	ReleaseError error

	// CloseEarly closes the fragment channel right after the live fragments,
	// as a device that drops out mid-recording would.
	CloseEarly bool

	mu               sync.Mutex
	CallCountStart   int
	CallCountStop    int
	CallCountRelease int

	initOnce sync.Once
	stopOnce sync.Once
	started  bool
	ch       chan []byte
	stop     chan struct{}
	done     chan struct{}
}

func (r *Recorder) init() {
	r.initOnce.Do(func() {
		r.ch = make(chan []byte, len(r.Live)+len(r.Flush))
		r.stop = make(chan struct{})
		r.done = make(chan struct{})
	})
}

func (r *Recorder) Fragments() <-chan []byte {
	r.init()
	return r.ch
}

func (r *Recorder) Start() error {
	r.init()
	r.mu.Lock()
	r.CallCountStart++
	if r.StartError != nil {
		r.mu.Unlock()
		return r.StartError
	}
	r.started = true
	r.mu.Unlock()

	go r.run()
	return nil
}

func (r *Recorder) run() {
	defer close(r.done)
	for _, f := range r.Live {
		if r.Interval > 0 {
			select {
			case <-time.After(r.Interval):
			case <-r.stop:
				return
			}
		}
		r.ch <- f
	}
	if r.CloseEarly {
		close(r.ch)
	}
}

func (r *Recorder) Stop() error {
	r.init()
	r.mu.Lock()
	r.CallCountStop++
	started := r.started
	err := r.StopError
	r.mu.Unlock()
	if err != nil {
		return err
	}

	r.stopOnce.Do(func() {
		close(r.stop)
		if !started {
			close(r.ch)
			return
		}
		<-r.done
		if r.CloseEarly {
			return
		}
		for _, f := range r.Flush {
			r.ch <- f
		}
		close(r.ch)
	})
	return nil
}

func (r *Recorder) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CallCountRelease++
	return r.ReleaseError
}

// Releases returns CallCountRelease under the lock.
func (r *Recorder) Releases() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.CallCountRelease
}
