// Package ws implements the duplex voice gateway: guests stream audio
// chunks up one WebSocket and receive transcript, reply, and synthesized
// audio events back down it.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/stayline/concierge/internal/config"
	"github.com/stayline/concierge/internal/domain/conversation"
	"github.com/stayline/concierge/internal/middleware"
	"github.com/stayline/concierge/internal/service"
)

// Gateway upgrades voice connections and runs their chunk pipelines.
type Gateway struct {
	speech *service.SpeechService
	orch   *service.Orchestrator
	cfg    *config.Config
}

// NewGateway creates a voice Gateway.
func NewGateway(speech *service.SpeechService, orch *service.Orchestrator, cfg *config.Config) *Gateway {
	return &Gateway{speech: speech, orch: orch, cfg: cfg}
}

// session is the per-connection state. Chunks are processed strictly in
// arrival order by a single goroutine, so a connection's events never
// interleave.
type session struct {
	principal *service.Principal
	sessionID string
	voice     string
	mimetype  string
}

// HandleVoice upgrades the request and serves the connection until the
// client disconnects. The caller must already be authenticated; the
// token is verified during the HTTP handshake, before the upgrade.
func (g *Gateway) HandleVoice(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil {
		http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
		return
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("voice accept failed", "error", err)
		return
	}
	c.SetReadLimit(int64(g.cfg.Ingest.MaxUploadBytes))

	slog.Info("voice connected", "tenant_id", p.TenantID, "subject", p.Subject, "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess := &session{
		principal: p,
		voice:     g.cfg.Voice.DefaultVoice,
		mimetype:  "audio/webm",
	}

	// Bounded queue between the read loop and the processor. A guest
	// talking faster than the pipeline can answer fills it; overflow
	// closes the connection rather than buffering without limit.
	chunks := make(chan []byte, g.cfg.Voice.QueueSize)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for chunk := range chunks {
			g.processChunk(ctx, c, sess, chunk)
		}
	}()

	g.readLoop(ctx, c, sess, chunks)

	close(chunks)
	<-done
	cancel()
	_ = c.Close(websocket.StatusNormalClosure, "")
	slog.Info("voice disconnected", "tenant_id", p.TenantID, "subject", p.Subject)
}

// readLoop consumes frames until the connection drops or the queue
// overflows. Binary frames are raw audio; text frames carry control
// messages or audio_chunk envelopes.
func (g *Gateway) readLoop(ctx context.Context, c *websocket.Conn, sess *session, chunks chan<- []byte) {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			return
		}

		if typ == websocket.MessageText {
			data = g.handleText(sess, data)
			if data == nil {
				continue
			}
		}

		select {
		case chunks <- data:
		default:
			slog.Warn("voice queue overflow, closing connection",
				"tenant_id", sess.principal.TenantID, "queue_size", g.cfg.Voice.QueueSize)
			_ = c.Close(websocket.StatusPolicyViolation, "audio queue overflow")
			return
		}
	}
}

// handleText processes one client text frame. Audio wrapped in an
// audio_chunk envelope is returned for the chunk queue; control frames
// update the session and return nil.
func (g *Gateway) handleText(sess *session, data []byte) []byte {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Debug("voice frame malformed", "error", err)
		return nil
	}
	if msg.SessionID != "" {
		sess.sessionID = msg.SessionID
	}
	if msg.Voice != "" {
		sess.voice = msg.Voice
	}
	if msg.Mimetype != "" {
		sess.mimetype = msg.Mimetype
	}

	if msg.Type != EventAudioChunk {
		return nil
	}
	var chunk audioChunkData
	if err := json.Unmarshal(msg.Data, &chunk); err != nil {
		slog.Debug("audio chunk malformed", "error", err)
		return nil
	}
	if chunk.Mimetype != "" {
		sess.mimetype = chunk.Mimetype
	}
	if chunk.Voice != "" {
		sess.voice = chunk.Voice
	}
	if len(chunk.Chunk) == 0 {
		return nil
	}
	return chunk.Chunk
}

// processChunk runs one audio chunk through the full pipeline and emits
// the three events in their fixed order. Failures are reported on the
// socket and the connection stays open for the next chunk.
func (g *Gateway) processChunk(ctx context.Context, c *websocket.Conn, sess *session, chunk []byte) {
	text, err := g.speech.Transcribe(ctx, chunk, sess.mimetype)
	if err != nil {
		g.sendError(ctx, c, "could not transcribe audio")
		slog.Warn("voice transcribe failed", "tenant_id", sess.principal.TenantID, "error", err)
		return
	}
	if err := sendEvent(ctx, c, EventTranscriptPartial, TranscriptEvent{Text: text}); err != nil {
		return
	}
	if text == "" {
		// No recognized speech. The transcript event still goes out so
		// clients can account for the chunk; there is nothing to answer.
		return
	}

	turn, err := g.orch.Turn(ctx, sess.principal, &conversation.TurnRequest{
		TenantID:  sess.principal.TenantID,
		UserID:    sess.principal.Subject,
		SessionID: sess.sessionID,
		Text:      text,
	})
	if err != nil {
		g.sendError(ctx, c, "could not answer, please try again")
		slog.Warn("voice turn failed", "tenant_id", sess.principal.TenantID, "error", err)
		return
	}
	if err := sendEvent(ctx, c, EventAgentResponse, AgentResponseEvent{
		Reply:       turn.Reply,
		ToolResults: turn.ToolResults,
	}); err != nil {
		return
	}

	audio, err := g.speech.Synthesize(ctx, turn.Reply, sess.voice, "mp3")
	if err != nil {
		g.sendError(ctx, c, "could not synthesize reply")
		slog.Warn("voice synthesize failed", "tenant_id", sess.principal.TenantID, "error", err)
		return
	}
	if err := sendEvent(ctx, c, EventTTSChunk, TTSChunkEvent{Audio: audio, Format: "mp3"}); err != nil {
		return
	}
}

func (g *Gateway) sendError(ctx context.Context, c *websocket.Conn, msg string) {
	_ = sendEvent(ctx, c, EventError, ErrorEvent{Message: msg})
}
