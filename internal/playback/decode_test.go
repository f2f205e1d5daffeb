package playback

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavBytes encodes samples as a 16-bit PCM WAV file.
func wavBytes(t *testing.T, samples []int16, rate, channels int) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i, s := range samples {
		buf.Data[i] = int(s)
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("encode close: %v", err)
	}
	f.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return data
}

func TestDecodeWAV(t *testing.T) {
	tests := []struct {
		name     string
		samples  []int16
		rate     int
		channels int
	}{
		{"mono", []int16{0, 1000, -1000, 32767, -32768}, 16000, 1},
		{"stereo", []int16{1, -1, 2, -2, 3, -3}, 44100, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pcm, err := Decode(wavBytes(t, tt.samples, tt.rate, tt.channels))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if pcm.SampleRate != tt.rate || pcm.Channels != tt.channels {
				t.Errorf("format = %d Hz x%d, want %d Hz x%d", pcm.SampleRate, pcm.Channels, tt.rate, tt.channels)
			}
			if len(pcm.Samples) != len(tt.samples) {
				t.Fatalf("got %d samples, want %d", len(pcm.Samples), len(tt.samples))
			}
			for i := range tt.samples {
				if pcm.Samples[i] != tt.samples[i] {
					t.Errorf("sample %d = %d, want %d", i, pcm.Samples[i], tt.samples[i])
				}
			}
			if pcm.Frames() != len(tt.samples)/tt.channels {
				t.Errorf("Frames() = %d", pcm.Frames())
			}
		})
	}
}

func TestDecodeUnknownFormat(t *testing.T) {
	for _, data := range [][]byte{nil, []byte("hello world"), []byte("RIFF\x00\x00\x00\x00AVI ")} {
		if _, err := Decode(data); !errors.Is(err, ErrUnknownFormat) {
			t.Errorf("Decode(%q) = %v, want ErrUnknownFormat", data, err)
		}
	}
}

func TestSniff(t *testing.T) {
	if !isMP3([]byte("ID3\x04\x00")) || !isMP3([]byte{0xFF, 0xFB, 0x90}) {
		t.Error("mp3 headers not recognized")
	}
	if isMP3([]byte{0xFF, 0x00}) {
		t.Error("0xFF without frame sync recognized as mp3")
	}
	if !isWAV([]byte("RIFF\x24\x00\x00\x00WAVEfmt ")) {
		t.Error("wav header not recognized")
	}
}
