// Package session drives one ask: capture a clip, upload it, play the
// answer. The Runner keeps the state machine across sessions and refuses
// to start a second session while one is running.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"voiceask/internal/capture"
	"voiceask/internal/fault"
	"voiceask/internal/metrics"
	"voiceask/internal/status"
	"voiceask/internal/upload"
)

var (
	ErrSessionActive = errors.New("a session is already running")
	ErrRunnerClosed  = errors.New("session runner is shutting down")
)

type AudioCapturer interface {
	Capture(ctx context.Context, onRecording func(time.Duration)) (capture.Payload, error)
}

type HTTPUploader interface {
	Upload(ctx context.Context, p capture.Payload) (upload.Reply, error)
}

type AudioPlayer interface {
	Play(ctx context.Context, url string) error
}

// Session is the record of one ask.
type Session struct {
	ID           string
	Started      time.Time
	Finished     time.Time
	State        State
	PayloadBytes int
	AudioURL     string
	Transcript   string
	Err          error
}

// Snapshot is what a status surface needs to render the current state.
type Snapshot struct {
	State     State  `json:"state"`
	Status    string `json:"status"`
	Enabled   bool   `json:"enabled"`
	Label     string `json:"label"`
	SessionID string `json:"session,omitempty"`
}

type Deps struct {
	Capturer AudioCapturer
	Uploader HTTPUploader
	Player   AudioPlayer
	Reporter status.Reporter
	Metrics  *metrics.Metrics
}

type Runner struct {
	deps Deps
	log  zerolog.Logger

	mu     sync.Mutex
	state  State
	text   string
	label  string
	active bool
	closed bool
	last   *Session

	wg sync.WaitGroup
}

func NewRunner(deps Deps, log zerolog.Logger) *Runner {
	if deps.Reporter == nil {
		deps.Reporter = status.Nop{}
	}
	return &Runner{
		deps:  deps,
		log:   log.With().Str("component", "session").Logger(),
		state: Idle,
		label: status.LabelIdle,
	}
}

// Run runs one session to completion. The returned error is the session's
// failure, or ErrSessionActive if another session holds the runner.
func (r *Runner) Run(ctx context.Context) (*Session, error) {
	s, err := r.begin(false)
	if err != nil {
		return nil, err
	}
	r.run(ctx, s)
	return s, s.Err
}

// Trigger starts a session in the background.
func (r *Runner) Trigger(ctx context.Context) error {
	s, err := r.begin(true)
	if err != nil {
		return err
	}
	go func() {
		defer r.wg.Done()
		r.run(ctx, s)
	}()
	return nil
}

// Wait refuses new sessions and blocks until every background session has
// finished.
func (r *Runner) Wait() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := Snapshot{
		State:   r.state,
		Status:  r.text,
		Enabled: !r.active,
		Label:   r.label,
	}
	if r.last != nil {
		snap.SessionID = r.last.ID
	}
	return snap
}

// begin claims the runner. A background session is added to wg under mu so
// it cannot race a concurrent Wait.
func (r *Runner) begin(background bool) (*Session, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRunnerClosed
	}
	if r.active {
		r.mu.Unlock()
		return nil, ErrSessionActive
	}
	next, err := Transition(r.state, EventTrigger)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	s := &Session{
		ID:      uuid.NewString(),
		Started: time.Now(),
		State:   next,
	}
	r.state = next
	r.active = true
	r.last = s
	r.label = status.LabelRecording
	r.text = status.TextRequesting
	if background {
		r.wg.Add(1)
	}
	r.mu.Unlock()

	r.deps.Metrics.SessionStarted()
	r.deps.Reporter.Trigger(false, status.LabelRecording)
	r.deps.Reporter.Status(status.TextRequesting)
	return s, nil
}

func (r *Runner) run(ctx context.Context, s *Session) {
	log := r.log.With().Str("session", s.ID).Logger()
	log.Info().Msg("session started")

	if r.deps.Capturer == nil {
		r.fail(log, s, EventCaptureFailed, fault.New(fault.UnsupportedPlatform, "audio recording is not supported on this platform"))
		return
	}

	stageStart := time.Now()
	var recErr error
	payload, err := r.deps.Capturer.Capture(ctx, func(d time.Duration) {
		recErr = r.advance(s, EventGranted, status.Recording(int(d.Round(time.Second)/time.Second)))
	})
	if err == nil {
		err = recErr
	}
	if err != nil {
		r.fail(log, s, EventCaptureFailed, err)
		return
	}
	r.deps.Metrics.ObserveStage("capture", time.Since(stageStart))
	s.PayloadBytes = len(payload.Data)
	log.Info().Int("bytes", s.PayloadBytes).Msg("recording finished")

	if err := r.advance(s, EventTimeout, status.TextProcessing); err != nil {
		r.fail(log, s, EventUploadFailed, err)
		return
	}
	r.setText(status.TextUploading)

	if r.deps.Uploader == nil {
		r.fail(log, s, EventUploadFailed, fault.New(fault.NetworkError, "no upload endpoint configured"))
		return
	}
	stageStart = time.Now()
	r.deps.Metrics.ObserveUpload(len(payload.Data))
	reply, err := r.deps.Uploader.Upload(ctx, payload)
	if err != nil {
		r.fail(log, s, EventUploadFailed, err)
		return
	}
	r.deps.Metrics.ObserveStage("upload", time.Since(stageStart))
	s.AudioURL = reply.AudioURL
	s.Transcript = reply.Transcript
	log.Info().Str("audio_url", s.AudioURL).Msg("response received")

	if err := r.advance(s, EventResponseOK, status.TextPlaying); err != nil {
		r.fail(log, s, EventPlaybackFailed, err)
		return
	}

	stageStart = time.Now()
	if r.deps.Player == nil {
		r.fail(log, s, EventPlaybackFailed, fault.New(fault.PlaybackUnsupported, "audio playback is not supported on this platform"))
		return
	}
	if err := r.deps.Player.Play(ctx, s.AudioURL); err != nil {
		r.fail(log, s, EventPlaybackFailed, err)
		return
	}
	r.deps.Metrics.ObserveStage("playback", time.Since(stageStart))

	if err := r.advance(s, EventEnded, status.TextPlayed); err != nil {
		r.fail(log, s, EventPlaybackFailed, err)
		return
	}
	r.deps.Metrics.SessionFinished("succeeded", "")
	r.finish(s, status.LabelAgain)
	log.Info().Dur("took", s.Finished.Sub(s.Started)).Msg("session succeeded")
}

// advance applies e and publishes text.
func (r *Runner) advance(s *Session, e Event, text string) error {
	r.mu.Lock()
	next, err := Transition(r.state, e)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	r.state = next
	s.State = next
	r.text = text
	r.mu.Unlock()

	r.deps.Reporter.Status(text)
	return nil
}

func (r *Runner) setText(text string) {
	r.mu.Lock()
	r.text = text
	r.mu.Unlock()
	r.deps.Reporter.Status(text)
}

func (r *Runner) fail(log zerolog.Logger, s *Session, e Event, err error) {
	s.Err = err
	kind := fault.KindOf(err)
	text := status.Error(err.Error())

	r.mu.Lock()
	next, terr := Transition(r.state, e)
	if terr != nil {
		log.Error().Err(terr).Msg("forcing failed state")
		next = Failed
	}
	r.state = next
	s.State = next
	r.text = text
	r.mu.Unlock()

	log.Error().Err(err).Str("kind", kind.String()).Msg("session failed")
	r.deps.Metrics.SessionFinished("failed", kind.String())
	r.deps.Reporter.Status(text)
	r.finish(s, status.LabelRetry)
}

func (r *Runner) finish(s *Session, label string) {
	r.mu.Lock()
	s.Finished = time.Now()
	r.active = false
	r.label = label
	r.mu.Unlock()

	r.deps.Reporter.Trigger(true, label)
}
