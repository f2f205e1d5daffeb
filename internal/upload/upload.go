package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"voiceask/internal/capture"
	"voiceask/internal/fault"
)

type Config struct {
	BaseURL   string // base origin, e.g. http://127.0.0.1:8000/
	Path      string // e.g. /process-audio
	FieldName string
	APIKey    string
	Timeout   time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
	log  zerolog.Logger
}

// Reply is the processing endpoint's answer. AudioURL is already
// normalized against the base origin.
type Reply struct {
	AudioURL   string
	AudioPath  string
	Success    bool
	Transcript string
	Location   string
	Text       string
}

type response struct {
	Success         bool   `json:"success"`
	AudioPath       string `json:"audio_path"`
	TranscribedText string `json:"transcribed_text"`
	Location        string `json:"location"`
	WeatherText     string `json:"weather_text"`
}

func NewClient(cfg Config, log zerolog.Logger) (*Client, error) {
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	if cfg.BaseURL == "" {
		return nil, errors.New("missing endpoint base url")
	}
	if !hasScheme(cfg.BaseURL) {
		return nil, fmt.Errorf("endpoint base url must be http(s): %q", cfg.BaseURL)
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	if cfg.Path == "" {
		cfg.Path = "/process-audio"
	}
	if cfg.FieldName == "" {
		cfg.FieldName = "audio"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)

	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
		},
		log: log.With().Str("component", "upload").Logger(),
	}, nil
}

func (c *Client) Endpoint() string {
	return c.cfg.BaseURL + strings.TrimPrefix(c.cfg.Path, "/")
}

func (c *Client) BaseURL() string { return c.cfg.BaseURL }

// Upload posts p as a single multipart file field and resolves the audio
// locator in the JSON reply.
func (c *Client) Upload(ctx context.Context, p capture.Payload) (Reply, error) {
	body, contentType, err := c.form(p)
	if err != nil {
		return Reply{}, fault.Wrap(fault.NetworkError, err, "build upload request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(), body)
	if err != nil {
		return Reply{}, fault.Wrap(fault.NetworkError, err, "build upload request")
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	c.log.Info().Str("url", c.Endpoint()).Int("bytes", len(p.Data)).Msg("uploading recording")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return Reply{}, fault.Wrap(fault.NetworkError, err, "upload failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Reply{}, fault.Wrap(fault.NetworkError, err, "read upload response")
	}
	c.log.Info().
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("upload response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Error().Int("status", resp.StatusCode).Str("body", string(data)).Msg("server error")
		return Reply{}, fault.Server(resp.StatusCode, string(data), errorDetail(data))
	}

	var parsed response
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Reply{}, fault.Wrap(fault.MalformedResponse, err, "response is not valid JSON")
	}
	if strings.TrimSpace(parsed.AudioPath) == "" {
		return Reply{}, fault.New(fault.MalformedResponse, "response has no audio_path")
	}

	reply := Reply{
		AudioURL:   NormalizeLocator(c.cfg.BaseURL, parsed.AudioPath),
		AudioPath:  parsed.AudioPath,
		Success:    parsed.Success,
		Transcript: parsed.TranscribedText,
		Location:   parsed.Location,
		Text:       parsed.WeatherText,
	}
	c.log.Info().
		Str("audio_path", reply.AudioPath).
		Str("audio_url", reply.AudioURL).
		Str("transcript", reply.Transcript).
		Str("location", reply.Location).
		Msg("server reply")
	return reply, nil
}

func (c *Client) form(p capture.Payload) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	contentType := p.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, c.cfg.FieldName, p.Filename))
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(p.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// errorDetail pulls the message out of a {"detail": "..."} body; plain text
// bodies yield "" so the raw text is used instead.
func errorDetail(data []byte) string {
	var parsed struct {
		Detail any `json:"detail"`
	}
	if json.Unmarshal(data, &parsed) != nil {
		return ""
	}
	switch d := parsed.Detail.(type) {
	case string:
		return d
	case nil:
		return ""
	default:
		b, _ := json.Marshal(d)
		return string(b)
	}
}
