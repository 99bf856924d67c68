package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/coder/websocket"

	"github.com/stayline/concierge/internal/domain/conversation"
)

// Event type constants for voice gateway messages. Every processed audio
// chunk yields transcript_partial, then agent_response, then tts_chunk,
// in that order. A chunk with no recognized speech still yields its
// transcript_partial (with empty text) but nothing after it.
const (
	EventTranscriptPartial = "transcript_partial"
	EventAgentResponse     = "agent_response"
	EventTTSChunk          = "tts_chunk"
	EventError             = "error"

	// EventAudioChunk is client-to-server: one audio chunk wrapped in a
	// JSON envelope. Raw binary frames carry the same audio without the
	// envelope overhead.
	EventAudioChunk = "audio_chunk"
)

// Envelope wraps every server-to-client message.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// TranscriptEvent carries the recognized text for one audio chunk.
type TranscriptEvent struct {
	Text string `json:"text"`
}

// AgentResponseEvent carries the concierge reply for one utterance.
type AgentResponseEvent struct {
	Reply       string                    `json:"reply"`
	ToolResults []conversation.ToolResult `json:"tool_results,omitempty"`
}

// TTSChunkEvent carries synthesized reply audio. Audio is base64 in the
// JSON wire form.
type TTSChunkEvent struct {
	Audio  []byte `json:"audio"`
	Format string `json:"format"`
}

// ErrorEvent reports a per-chunk failure. The connection stays open.
type ErrorEvent struct {
	Message string `json:"message"`
}

// controlMessage is a client-to-server text frame. The client may pin a
// session id and voice before streaming audio, or carry audio itself
// when Type is audio_chunk.
type controlMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Voice     string          `json:"voice,omitempty"`
	Mimetype  string          `json:"mimetype,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// audioChunkData is the payload of an audio_chunk envelope. Chunk is
// base64 in the JSON wire form.
type audioChunkData struct {
	Chunk    []byte `json:"chunk"`
	Mimetype string `json:"mimetype,omitempty"`
	Voice    string `json:"voice,omitempty"`
}

// sendEvent marshals a typed event into an envelope and writes it.
func sendEvent(ctx context.Context, c *websocket.Conn, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal voice event", "type", eventType, "error", err)
		return err
	}
	msg, err := json.Marshal(Envelope{Type: eventType, Data: data})
	if err != nil {
		return err
	}
	return c.Write(ctx, websocket.MessageText, msg)
}
