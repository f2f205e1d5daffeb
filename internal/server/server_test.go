package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"voiceask/internal/session"
)

type fakeController struct {
	mu       sync.Mutex
	snap     session.Snapshot
	err      error
	triggers int
}

func (f *fakeController) Trigger(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers++
	return f.err
}

func (f *fakeController) Snapshot() session.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeController) set(s session.Snapshot) {
	f.mu.Lock()
	f.snap = s
	f.mu.Unlock()
}

func newTestServer(t *testing.T, ctl Controller) *httptest.Server {
	t.Helper()
	s := New(Config{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "# metrics")
	}), zerolog.Nop())
	if ctl != nil {
		s.Attach(ctl)
	}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestIndexHasControls(t *testing.T) {
	srv := newTestServer(t, &fakeController{})

	res, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)

	for _, want := range []string{`id="startBtn"`, `id="status"`, `/app.js`} {
		if !strings.Contains(string(body), want) {
			t.Errorf("index missing %s", want)
		}
	}

	res, err = http.Get(srv.URL + "/nope")
	if err != nil {
		t.Fatalf("GET /nope: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Errorf("GET /nope = %d, want 404", res.StatusCode)
	}
}

func TestAppScriptToleratesMissingElements(t *testing.T) {
	srv := newTestServer(t, &fakeController{})

	res, err := http.Get(srv.URL + "/app.js")
	if err != nil {
		t.Fatalf("GET /app.js: %v", err)
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(res.Body)
	js := string(b)

	if !strings.Contains(js, "if (btn) {\n    btn.addEventListener(") {
		t.Fatal("click handler is wired without checking the trigger element exists")
	}
	if strings.Count(js, "btn.addEventListener(") != 1 {
		t.Error("click handler wired more than once")
	}
	for _, el := range []string{"btn", "stateEl", "statusEl", "sseStatus"} {
		if !strings.Contains(js, "if ("+el+")") {
			t.Errorf("%s is used without a null check", el)
		}
	}
}

func TestTrigger(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		err        error
		wantStatus int
	}{
		{"starts a session", http.MethodPost, nil, http.StatusAccepted},
		{"busy", http.MethodPost, session.ErrSessionActive, http.StatusConflict},
		{"shutting down", http.MethodPost, session.ErrRunnerClosed, http.StatusServiceUnavailable},
		{"other failure", http.MethodPost, errors.New("broken"), http.StatusInternalServerError},
		{"wrong method", http.MethodGet, nil, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctl := &fakeController{err: tt.err, snap: session.Snapshot{State: session.RequestingAccess, Label: "Recording..."}}
			srv := newTestServer(t, ctl)

			req, _ := http.NewRequest(tt.method, srv.URL+"/api/trigger", nil)
			res, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			defer res.Body.Close()

			if res.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", res.StatusCode, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusAccepted || tt.wantStatus == http.StatusConflict {
				var snap session.Snapshot
				if err := json.NewDecoder(res.Body).Decode(&snap); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if snap.State != session.RequestingAccess {
					t.Errorf("snapshot state = %s", snap.State)
				}
			}
		})
	}
}

func TestStateAndHealth(t *testing.T) {
	ctl := &fakeController{snap: session.Snapshot{State: session.Idle, Enabled: true, Label: "Ask"}}
	srv := newTestServer(t, ctl)

	res, err := http.Get(srv.URL + "/api/state")
	if err != nil {
		t.Fatalf("GET /api/state: %v", err)
	}
	var snap session.Snapshot
	_ = json.NewDecoder(res.Body).Decode(&snap)
	res.Body.Close()
	if snap.State != session.Idle || !snap.Enabled || snap.Label != "Ask" {
		t.Errorf("state = %+v", snap)
	}

	for _, path := range []string{"/healthz", "/metrics"} {
		res, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d", path, res.StatusCode)
		}
	}
}

func TestNotReadyWithoutController(t *testing.T) {
	srv := newTestServer(t, nil)

	res, err := http.Post(srv.URL+"/api/trigger", "", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", res.StatusCode)
	}
}

func TestEventsStreamSnapshots(t *testing.T) {
	ctl := &fakeController{snap: session.Snapshot{State: session.Idle, Enabled: true, Label: "Ask"}}
	s := New(Config{}, nil, zerolog.Nop())
	s.Attach(ctl)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /events: %v", err)
	}
	defer res.Body.Close()

	r := bufio.NewReader(res.Body)
	next := func() session.Snapshot {
		t.Helper()
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if data, ok := strings.CutPrefix(strings.TrimSpace(line), "data: "); ok {
				var snap session.Snapshot
				if err := json.Unmarshal([]byte(data), &snap); err != nil {
					t.Fatalf("decode %q: %v", data, err)
				}
				return snap
			}
		}
	}

	if first := next(); first.State != session.Idle {
		t.Fatalf("first event = %+v", first)
	}

	ctl.set(session.Snapshot{State: session.Failed, Status: "Error: failed to process audio: 500 - boom", Enabled: true, Label: "Try Again"})
	// the handler registers its client before the first write, so this lands
	s.Status("ignored")

	got := next()
	if got.State != session.Failed || got.Label != "Try Again" || !strings.Contains(got.Status, "boom") {
		t.Errorf("pushed event = %+v", got)
	}
}
