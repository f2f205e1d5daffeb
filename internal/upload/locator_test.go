package upload

import "testing"

func TestNormalizeLocator(t *testing.T) {
	const base = "http://127.0.0.1:8000/"
	tests := []struct {
		locator string
		want    string
	}{
		{"clips/a.wav", "http://127.0.0.1:8000/clips/a.wav"},
		{"/clips/a.wav", "http://127.0.0.1:8000/clips/a.wav"},
		{"//clips/a.wav", "http://127.0.0.1:8000//clips/a.wav"},
		{"http://cdn.example.com/a.mp3", "http://cdn.example.com/a.mp3"},
		{"https://cdn.example.com/a.mp3", "https://cdn.example.com/a.mp3"},
		{"HTTPS://cdn.example.com/a.mp3", "HTTPS://cdn.example.com/a.mp3"},
		{"a.wav?x=1", "http://127.0.0.1:8000/a.wav?x=1"},
	}

	for _, tt := range tests {
		t.Run(tt.locator, func(t *testing.T) {
			got := NormalizeLocator(base, tt.locator)
			if got != tt.want {
				t.Errorf("NormalizeLocator(%q) = %q, want %q", tt.locator, got, tt.want)
			}
			if again := NormalizeLocator(base, got); again != got {
				t.Errorf("not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestNormalizeLocatorBaseWithoutSlash(t *testing.T) {
	if got := NormalizeLocator("http://h:1", "x.wav"); got != "http://h:1/x.wav" {
		t.Errorf("got %q", got)
	}
}
