// Package status carries progress text and trigger state to whatever
// surface shows them to the user.
package status

import (
	"fmt"

	"github.com/rs/zerolog"
)

const (
	LabelIdle      = "Ask"
	LabelRecording = "Recording..."
	LabelRetry     = "Try Again"
	LabelAgain     = "Ask Again"
)

const (
	TextRequesting = "Requesting microphone access..."
	TextProcessing = "Processing your request..."
	TextUploading  = "Uploading audio to server..."
	TextPlaying    = "Playing response..."
	TextPlayed     = "Response played successfully!"
)

func Recording(seconds int) string { return fmt.Sprintf("Recording... (%d seconds)", seconds) }

func Error(msg string) string { return "Error: " + msg }

// Reporter is a sink for progress updates. Implementations must not block
// for long and never fail.
type Reporter interface {
	Status(text string)
	Trigger(enabled bool, label string)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Status(string)        {}
func (Nop) Trigger(bool, string) {}

type Log struct {
	log zerolog.Logger
}

func NewLog(log zerolog.Logger) Log {
	return Log{log: log.With().Str("component", "status").Logger()}
}

func (l Log) Status(text string) {
	l.log.Info().Str("status", text).Msg("status")
}

func (l Log) Trigger(enabled bool, label string) {
	l.log.Debug().Bool("enabled", enabled).Str("label", label).Msg("trigger")
}

// Multi fans out to every non-nil reporter.
type Multi []Reporter

func (m Multi) Status(text string) {
	for _, r := range m {
		if r != nil {
			r.Status(text)
		}
	}
}

func (m Multi) Trigger(enabled bool, label string) {
	for _, r := range m {
		if r != nil {
			r.Trigger(enabled, label)
		}
	}
}
