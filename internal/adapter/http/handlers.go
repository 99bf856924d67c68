package http

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/stayline/concierge/internal/config"
	"github.com/stayline/concierge/internal/domain/conversation"
	"github.com/stayline/concierge/internal/middleware"
	"github.com/stayline/concierge/internal/service"
)

const jsonBodyLimit = 1 << 20

// HealthChecker reports whether the model proxy is reachable.
type HealthChecker interface {
	Health(ctx context.Context) (bool, error)
}

// Handlers holds all HTTP handler dependencies.
type Handlers struct {
	orch   *service.Orchestrator
	ingest *service.IngestService
	speech *service.SpeechService
	llm    HealthChecker
	cfg    *config.Config
}

// NewHandlers creates the handler set.
func NewHandlers(orch *service.Orchestrator, ingest *service.IngestService, speech *service.SpeechService, llm HealthChecker, cfg *config.Config) *Handlers {
	return &Handlers{orch: orch, ingest: ingest, speech: speech, llm: llm, cfg: cfg}
}

// Chat handles POST /api/v1/chat: one text turn.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	req, ok := readJSON[conversation.TurnRequest](w, r, jsonBodyLimit)
	if !ok {
		return
	}

	result, err := h.orch.Turn(r.Context(), p, &req)
	if err != nil {
		writeDomainError(w, err, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// chatAudioResponse is the reply for an audio turn.
type chatAudioResponse struct {
	Transcript  string                    `json:"transcript"`
	Reply       string                    `json:"reply"`
	ToolResults []conversation.ToolResult `json:"tool_results,omitempty"`
}

// ChatAudio handles POST /api/v1/chat/audio: a single recorded utterance
// uploaded as multipart form data. The voice WebSocket is the streaming
// variant of this.
func (h *Handlers) ChatAudio(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Ingest.MaxUploadBytes)
	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer func() { _ = file.Close() }()

	audio, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read audio")
		return
	}

	transcript, err := h.speech.Transcribe(r.Context(), audio, header.Header.Get("Content-Type"))
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	if transcript == "" {
		writeError(w, http.StatusBadRequest, "no speech detected")
		return
	}

	result, err := h.orch.Turn(r.Context(), p, &conversation.TurnRequest{
		TenantID:  p.TenantID,
		UserID:    p.Subject,
		SessionID: r.FormValue("session_id"),
		Text:      transcript,
	})
	if err != nil {
		writeDomainError(w, err, "")
		return
	}

	writeJSON(w, http.StatusOK, chatAudioResponse{
		Transcript:  transcript,
		Reply:       result.Reply,
		ToolResults: result.ToolResults,
	})
}

// UploadDocument handles POST /api/v1/documents: accepts a file and
// returns 202 with the doc id while ingestion runs in the background.
func (h *Handlers) UploadDocument(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Ingest.MaxUploadBytes+4096)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer func() { _ = file.Close() }()

	info, err := h.ingest.Enqueue(r.Context(), p.TenantID, header.Filename, file)
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	writeJSON(w, http.StatusAccepted, info)
}

// GetDocument handles GET /api/v1/documents/{docID}: ingestion status.
func (h *Handlers) GetDocument(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	info, err := h.ingest.GetStatus(urlParam(r, "docID"))
	if err != nil {
		writeDomainError(w, err, "document not found")
		return
	}
	if info.TenantID != p.TenantID {
		// Status is tenant-scoped like everything else.
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// speechRequest is the body for POST /api/v1/speech.
type speechRequest struct {
	Text   string `json:"text"`
	Voice  string `json:"voice,omitempty"`
	Format string `json:"format,omitempty"`
}

// Speech handles POST /api/v1/speech: synthesize text to audio.
func (h *Handlers) Speech(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	req, ok := readJSON[speechRequest](w, r, jsonBodyLimit)
	if !ok {
		return
	}

	audio, err := h.speech.Synthesize(r.Context(), req.Text, req.Voice, req.Format)
	if err != nil {
		writeDomainError(w, err, "")
		return
	}

	format := req.Format
	if format == "" {
		format = "mp3"
	}
	w.Header().Set("Content-Type", audioContentType(format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}

func audioContentType(format string) string {
	switch strings.ToLower(format) {
	case "wav":
		return "audio/wav"
	case "opus":
		return "audio/opus"
	case "flac":
		return "audio/flac"
	default:
		return "audio/mpeg"
	}
}

// Health handles GET /health. The proxy check is advisory: the service
// reports degraded rather than down when models are unreachable.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if h.llm != nil {
		if up, err := h.llm.Health(r.Context()); err != nil || !up {
			status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}
