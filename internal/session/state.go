package session

import (
	"errors"
	"fmt"
)

type State string

const (
	Idle             State = "idle"
	RequestingAccess State = "requesting_access"
	Recording        State = "recording"
	Uploading        State = "uploading"
	Playing          State = "playing"
	Succeeded        State = "succeeded"
	Failed           State = "failed"
)

// TriggerEnabled reports whether a new session may start from s.
func (s State) TriggerEnabled() bool {
	switch s {
	case Idle, Failed, Succeeded:
		return true
	default:
		return false
	}
}

type Event string

const (
	EventTrigger        Event = "trigger"
	EventGranted        Event = "granted"
	EventCaptureFailed  Event = "capture_failed"
	EventTimeout        Event = "timeout"
	EventResponseOK     Event = "response_ok"
	EventUploadFailed   Event = "upload_failed"
	EventEnded          Event = "ended"
	EventPlaybackFailed Event = "playback_failed"
)

var ErrInvalidTransition = errors.New("invalid transition")

var transitions = map[State]map[Event]State{
	Idle:             {EventTrigger: RequestingAccess},
	RequestingAccess: {EventGranted: Recording, EventCaptureFailed: Failed},
	Recording:        {EventTimeout: Uploading, EventCaptureFailed: Failed},
	Uploading:        {EventResponseOK: Playing, EventUploadFailed: Failed},
	Playing:          {EventEnded: Succeeded, EventPlaybackFailed: Failed},
	Failed:           {EventTrigger: RequestingAccess},
	Succeeded:        {EventTrigger: RequestingAccess},
}

// Transition is the only place state changes are decided.
func Transition(s State, e Event) (State, error) {
	if next, ok := transitions[s][e]; ok {
		return next, nil
	}
	return s, fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, e, s)
}
