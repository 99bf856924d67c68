package litellm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
)

// extensionFor maps common audio mimetypes to a filename extension the
// transcription endpoint accepts.
func extensionFor(mimetype string) string {
	switch strings.ToLower(strings.TrimSpace(strings.Split(mimetype, ";")[0])) {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/ogg":
		return "ogg"
	case "audio/webm":
		return "webm"
	case "audio/flac", "audio/x-flac":
		return "flac"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return "m4a"
	default:
		return "wav"
	}
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe sends audio to the transcription endpoint and returns the
// transcript text.
func (c *Client) Transcribe(ctx context.Context, audio []byte, mimetype string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="audio.%s"`, extensionFor(mimetype)))
	hdr.Set("Content-Type", mimetype)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return "", fmt.Errorf("create multipart: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("write audio part: %w", err)
	}
	if err := mw.WriteField("model", c.transcribeModel); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	data, err := c.doRequest(ctx, http.MethodPost, "/audio/transcriptions", mw.FormDataContentType(), buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}

	var resp transcriptionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("unmarshal transcription: %w", err)
	}
	return resp.Text, nil
}

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format,omitempty"`
}

// Synthesize sends text to the speech endpoint and returns audio bytes.
func (c *Client) Synthesize(ctx context.Context, text, voice, format string) ([]byte, error) {
	body, err := json.Marshal(speechRequest{
		Model:          c.speechModel,
		Input:          text,
		Voice:          voice,
		ResponseFormat: format,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal speech request: %w", err)
	}

	data, err := c.doRequest(ctx, http.MethodPost, "/audio/speech", "application/json", body)
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	return data, nil
}
