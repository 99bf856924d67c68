package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	cchttp "github.com/stayline/concierge/internal/adapter/http"
	"github.com/stayline/concierge/internal/adapter/memstore"
	"github.com/stayline/concierge/internal/config"
	"github.com/stayline/concierge/internal/domain"
	"github.com/stayline/concierge/internal/middleware"
	"github.com/stayline/concierge/internal/port/llm"
	"github.com/stayline/concierge/internal/port/messagequeue"
	"github.com/stayline/concierge/internal/port/vectorstore"
	"github.com/stayline/concierge/internal/service"
)

type fakeLLM struct {
	reply string
	err   error
}

func (f *fakeLLM) Chat(_ context.Context, _ llm.ChatRequest) (*llm.ChatResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{Reply: f.reply}, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{0.1}, nil
}

type emptyVectors struct{}

func (emptyVectors) Upsert(_ context.Context, _ string, _ []vectorstore.Record) error { return nil }
func (emptyVectors) Query(_ context.Context, _ string, _ []float32, _ int, _ map[string]any) ([]vectorstore.QueryResult, error) {
	return nil, nil
}
func (emptyVectors) Close() error { return nil }

type nopQueue struct{ err error }

func (q *nopQueue) Publish(_ context.Context, _ string, _ []byte) error { return q.err }
func (q *nopQueue) Subscribe(_ context.Context, _ string, _ messagequeue.Handler) (func(), error) {
	return func() {}, nil
}
func (q *nopQueue) Close() error { return nil }

type fakeSTT struct{ text string }

func (f *fakeSTT) Transcribe(_ context.Context, _ []byte, _ string) (string, error) {
	return f.text, nil
}

type fakeTTS struct{}

func (fakeTTS) Synthesize(_ context.Context, text, _, _ string) ([]byte, error) {
	return []byte("audio:" + text), nil
}

type fakeHealth struct {
	up  bool
	err error
}

func (f *fakeHealth) Health(_ context.Context) (bool, error) { return f.up, f.err }

type apiFixture struct {
	llm    *fakeLLM
	ingest *service.IngestService
	health *fakeHealth
	router chi.Router
}

// newAPIFixture wires the real services behind the router, with every
// request authenticated as hotel-1/guest-1.
func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	cfg := config.Defaults()
	cfg.Ingest.UploadDir = t.TempDir()

	fx := &apiFixture{
		llm:    &fakeLLM{reply: "Happy to help."},
		health: &fakeHealth{up: true},
	}

	retrieval := service.NewRetrievalService(fakeEmbedder{}, emptyVectors{}, &cfg.Retrieval)
	orch := service.NewOrchestrator(fx.llm, memstore.New(), retrieval, service.NewToolRegistry(), &cfg)
	fx.ingest = service.NewIngestService(&nopQueue{}, fakeEmbedder{}, emptyVectors{}, func(path string) (string, error) {
		return "doc text", nil
	}, &cfg.Ingest)
	speechSvc := service.NewSpeechService(&fakeSTT{text: "hello"}, fakeTTS{}, nil, &cfg)

	h := cchttp.NewHandlers(orch, fx.ingest, speechSvc, fx.health, &cfg)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			p := &service.Principal{Subject: "guest-1", TenantID: "hotel-1"}
			next.ServeHTTP(w, req.WithContext(middleware.WithPrincipal(req.Context(), p)))
		})
	})
	cchttp.MountRoutes(r, h, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusSwitchingProtocols)
	})
	fx.router = r
	return fx
}

func (fx *apiFixture) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	return rec
}

func TestChat_ReturnsReply(t *testing.T) {
	fx := newAPIFixture(t)

	rec := fx.do(t, http.MethodPost, "/api/v1/chat",
		strings.NewReader(`{"text":"where is breakfast"}`), "application/json")

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var result struct {
		Reply string `json:"reply"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Reply != "Happy to help." {
		t.Errorf("unexpected reply %q", result.Reply)
	}
}

func TestChat_EmptyTextRejected(t *testing.T) {
	fx := newAPIFixture(t)

	rec := fx.do(t, http.MethodPost, "/api/v1/chat",
		strings.NewReader(`{"text":"  "}`), "application/json")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestChat_MalformedBodyRejected(t *testing.T) {
	fx := newAPIFixture(t)

	rec := fx.do(t, http.MethodPost, "/api/v1/chat",
		strings.NewReader(`{not json`), "application/json")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestChat_UpstreamFailureIs502(t *testing.T) {
	fx := newAPIFixture(t)
	fx.llm.err = domain.ErrCompletion

	rec := fx.do(t, http.MethodPost, "/api/v1/chat",
		strings.NewReader(`{"text":"hi"}`), "application/json")

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func multipartBody(t *testing.T, field, filename string, content []byte, extra map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	for k, v := range extra {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestChatAudio_TranscribesAndAnswers(t *testing.T) {
	fx := newAPIFixture(t)

	body, contentType := multipartBody(t, "audio", "utterance.webm", []byte("opus-bytes"),
		map[string]string{"session_id": "sess-1"})
	rec := fx.do(t, http.MethodPost, "/api/v1/chat/audio", body, contentType)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var result struct {
		Transcript string `json:"transcript"`
		Reply      string `json:"reply"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &result)
	if result.Transcript != "hello" {
		t.Errorf("unexpected transcript %q", result.Transcript)
	}
	if result.Reply != "Happy to help." {
		t.Errorf("unexpected reply %q", result.Reply)
	}
}

func TestChatAudio_MissingFileRejected(t *testing.T) {
	fx := newAPIFixture(t)

	rec := fx.do(t, http.MethodPost, "/api/v1/chat/audio",
		strings.NewReader("not multipart"), "application/json")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUploadDocument_Accepted(t *testing.T) {
	fx := newAPIFixture(t)

	body, contentType := multipartBody(t, "file", "faq.txt", []byte("pool hours 8-20"), nil)
	rec := fx.do(t, http.MethodPost, "/api/v1/documents", body, contentType)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var info struct {
		DocID  string `json:"doc_id"`
		Status string `json:"status"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &info)
	if info.DocID == "" {
		t.Fatal("missing doc id")
	}
	if info.Status != "queued" {
		t.Errorf("expected queued status, got %q", info.Status)
	}
}

func TestGetDocument_StatusAndTenantScoping(t *testing.T) {
	fx := newAPIFixture(t)

	body, contentType := multipartBody(t, "file", "faq.txt", []byte("pool hours"), nil)
	rec := fx.do(t, http.MethodPost, "/api/v1/documents", body, contentType)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("upload failed: %d", rec.Code)
	}
	var info struct {
		DocID string `json:"doc_id"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &info)

	rec = fx.do(t, http.MethodGet, "/api/v1/documents/"+info.DocID, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	// Unknown ids and other tenants' ids both read as absent.
	rec = fx.do(t, http.MethodGet, "/api/v1/documents/nope", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown doc, got %d", rec.Code)
	}
}

func TestSpeech_ReturnsAudio(t *testing.T) {
	fx := newAPIFixture(t)

	rec := fx.do(t, http.MethodPost, "/api/v1/speech",
		strings.NewReader(`{"text":"welcome","format":"wav"}`), "application/json")

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("unexpected content type %q", ct)
	}
	if rec.Body.String() != "audio:welcome" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestSpeech_EmptyTextRejected(t *testing.T) {
	fx := newAPIFixture(t)

	rec := fx.do(t, http.MethodPost, "/api/v1/speech",
		strings.NewReader(`{"text":""}`), "application/json")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHealth_DegradedWhenProxyDown(t *testing.T) {
	fx := newAPIFixture(t)

	rec := fx.do(t, http.MethodGet, "/health", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("expected healthy response, got %d %s", rec.Code, rec.Body.String())
	}

	fx.health.up = false
	fx.health.err = errors.New("proxy unreachable")
	rec = fx.do(t, http.MethodGet, "/health", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "degraded") {
		t.Fatalf("expected degraded response, got %d %s", rec.Code, rec.Body.String())
	}
}
