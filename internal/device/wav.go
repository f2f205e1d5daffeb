package device

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
)

// EncodeWAV writes samples as a 16-bit PCM WAV file in dir and returns its
// bytes. The encoder needs a seekable writer, hence the temp file.
func EncodeWAV(samples []int16, rate, channels int, dir string) ([]byte, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "voiceask-"+uuid.NewString()+".wav")
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer os.Remove(path)

	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: channels,
			SampleRate:  rate,
		},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i := range samples {
		buf.Data[i] = int(samples[i])
	}
	if err := enc.Write(buf); err != nil {
		enc.Close()
		f.Close()
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}
