package status

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

type recorder struct {
	texts  []string
	labels []string
}

func (r *recorder) Status(text string) { r.texts = append(r.texts, text) }
func (r *recorder) Trigger(enabled bool, label string) {
	if !enabled {
		label = "(disabled) " + label
	}
	r.labels = append(r.labels, label)
}

func TestMultiSkipsNil(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := Multi{a, nil, Nop{}, b}

	m.Status("x")
	m.Trigger(false, LabelRecording)

	for _, r := range []*recorder{a, b} {
		if len(r.texts) != 1 || r.texts[0] != "x" {
			t.Errorf("texts = %v", r.texts)
		}
		if len(r.labels) != 1 || r.labels[0] != "(disabled) Recording..." {
			t.Errorf("labels = %v", r.labels)
		}
	}
}

func TestTexts(t *testing.T) {
	if got := Recording(5); got != "Recording... (5 seconds)" {
		t.Errorf("Recording(5) = %q", got)
	}
	if got := Error("failed to process audio: 500 - boom"); got != "Error: failed to process audio: 500 - boom" {
		t.Errorf("Error() = %q", got)
	}
}

func TestLogWritesStatus(t *testing.T) {
	var buf bytes.Buffer
	l := NewLog(zerolog.New(&buf))
	l.Status(TextUploading)

	if !strings.Contains(buf.String(), `"status":"Uploading audio to server..."`) {
		t.Errorf("log output = %s", buf.String())
	}
}
