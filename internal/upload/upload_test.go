package upload

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"voiceask/internal/capture"
	"voiceask/internal/fault"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(Config{BaseURL: baseURL, Timeout: 5 * time.Second}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

var clip = capture.Payload{Data: []byte("RIFF....WAVEdata"), ContentType: "audio/wav", Filename: "recording.wav"}

func TestUploadSendsMultipartFile(t *testing.T) {
	var (
		gotMethod, gotPath, gotFilename, gotType, gotAuth string
		gotData                                           []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		f, hdr, err := r.FormFile("audio")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		gotFilename = hdr.Filename
		gotType = hdr.Header.Get("Content-Type")
		gotData, _ = io.ReadAll(f)
		_, _ = io.WriteString(w, `{"success":true,"audio_path":"/clips/a.wav","transcribed_text":"weather in Oslo"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/")
	reply, err := c.Upload(context.Background(), clip)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if gotMethod != http.MethodPost || gotPath != "/process-audio" {
		t.Errorf("request = %s %s, want POST /process-audio", gotMethod, gotPath)
	}
	if gotFilename != "recording.wav" {
		t.Errorf("filename = %q, want recording.wav", gotFilename)
	}
	if gotType != "audio/wav" {
		t.Errorf("part content type = %q, want audio/wav", gotType)
	}
	if string(gotData) != string(clip.Data) {
		t.Errorf("uploaded data = %q, want %q", gotData, clip.Data)
	}
	if gotAuth != "" {
		t.Errorf("Authorization = %q, want none without a key", gotAuth)
	}

	if want := srv.URL + "/clips/a.wav"; reply.AudioURL != want {
		t.Errorf("AudioURL = %q, want %q", reply.AudioURL, want)
	}
	if !reply.Success || reply.Transcript != "weather in Oslo" {
		t.Errorf("reply extras = %+v", reply)
	}
}

func TestUploadBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = io.WriteString(w, `{"audio_path":"a.wav"}`)
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, APIKey: " secret "}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := c.Upload(context.Background(), clip); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q, want Bearer secret", gotAuth)
	}
}

func TestUploadServerError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"plain text", http.StatusInternalServerError, "boom", "failed to process audio: 500 - boom"},
		{"json detail", http.StatusBadRequest, `{"detail":"no speech detected"}`, "failed to process audio: 400 - no speech detected"},
		{"empty body", http.StatusBadGateway, "", "failed to process audio: 502 - "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv.URL).Upload(context.Background(), clip)

			var fe *fault.Error
			if !errors.As(err, &fe) || fe.Kind != fault.ServerError {
				t.Fatalf("err = %v, want ServerError", err)
			}
			if fe.Status != tt.status || fe.Body != tt.body {
				t.Errorf("status/body = %d %q, want %d %q", fe.Status, fe.Body, tt.status, tt.body)
			}
			if err.Error() != tt.wantMsg {
				t.Errorf("message = %q, want %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestUploadMalformedResponse(t *testing.T) {
	for _, body := range []string{"not json", `{"success":true}`, `{"audio_path":"  "}`} {
		t.Run(body, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, body)
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv.URL).Upload(context.Background(), clip)
			if !fault.Is(err, fault.MalformedResponse) {
				t.Fatalf("err = %v, want MalformedResponse", err)
			}
		})
	}
}

func TestUploadNetworkError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = newTestClient(t, "http://"+addr).Upload(context.Background(), clip)
	if !fault.Is(err, fault.NetworkError) {
		t.Fatalf("err = %v, want NetworkError", err)
	}
}

func TestNewClientRejectsBadBase(t *testing.T) {
	for _, base := range []string{"", "   ", "ftp://example.com", "127.0.0.1:8000"} {
		if _, err := NewClient(Config{BaseURL: base}, zerolog.Nop()); err == nil {
			t.Errorf("NewClient(%q) succeeded, want error", base)
		}
	}
}

func TestEndpoint(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:8000")
	if got := c.Endpoint(); got != "http://127.0.0.1:8000/process-audio" {
		t.Errorf("Endpoint() = %q", got)
	}
	if !strings.HasSuffix(c.BaseURL(), "/") {
		t.Errorf("BaseURL() = %q, want trailing slash", c.BaseURL())
	}
}
