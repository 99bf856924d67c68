package litellm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stayline/concierge/internal/adapter/litellm"
	"github.com/stayline/concierge/internal/domain"
	"github.com/stayline/concierge/internal/domain/conversation"
	"github.com/stayline/concierge/internal/port/llm"
	"github.com/stayline/concierge/internal/resilience"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *litellm.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return litellm.NewClient(srv.URL, "test-key",
		litellm.WithModels("gpt-test", "embed-test", "whisper-test", "tts-test"))
}

func TestClient_Chat(t *testing.T) {
	var gotBody map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Error("missing master key header")
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Good evening!"}}]}`))
	})

	temp := 0.4
	resp, err := client.Chat(context.Background(), llm.ChatRequest{
		Messages: []conversation.Message{
			{Role: conversation.RoleSystem, Content: "be nice"},
			{Role: conversation.RoleUser, Content: "hello"},
		},
		Temperature: &temp,
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Reply != "Good evening!" {
		t.Errorf("unexpected reply %q", resp.Reply)
	}
	if gotBody["model"] != "gpt-test" {
		t.Errorf("expected model gpt-test, got %v", gotBody["model"])
	}
	if gotBody["temperature"] != 0.4 {
		t.Errorf("temperature not forwarded: %v", gotBody["temperature"])
	}
}

func TestClient_Chat_ToolCalls(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{
			"content":"",
			"tool_calls":[{"id":"call_1","function":{"name":"createTicket","arguments":"{\"subject\":\"no hot water\"}"}}]
		}}]}`))
	})

	resp, err := client.Chat(context.Background(), llm.ChatRequest{
		Messages: []conversation.Message{{Role: conversation.RoleUser, Content: "fix it"}},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	tc := resp.ToolCalls[0]
	if tc.ID != "call_1" || tc.Name != "createTicket" {
		t.Errorf("unexpected tool call: %+v", tc)
	}
	if tc.Arguments["subject"] != "no hot water" {
		t.Errorf("arguments not decoded: %v", tc.Arguments)
	}
}

func TestClient_Chat_UpstreamError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model overloaded", http.StatusBadGateway)
	})

	_, err := client.Chat(context.Background(), llm.ChatRequest{
		Messages: []conversation.Message{{Role: conversation.RoleUser, Content: "hi"}},
	})
	if !errors.Is(err, domain.ErrCompletion) {
		t.Fatalf("expected completion error, got %v", err)
	}
}

func TestClient_Embed(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.25,0.5,0.75]}]}`))
	})

	vec, err := client.Embed(context.Background(), "chunk text")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 3 || vec[1] != 0.5 {
		t.Errorf("unexpected vector %v", vec)
	}
}

func TestClient_Embed_EmptyData(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	})
	if _, err := client.Embed(context.Background(), "x"); !errors.Is(err, domain.ErrRetrieval) {
		t.Fatalf("expected retrieval error, got %v", err)
	}
}

func TestClient_Transcribe(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if r.FormValue("model") != "whisper-test" {
			t.Errorf("model field missing, got %q", r.FormValue("model"))
		}
		_, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("file part missing: %v", err)
		}
		if hdr.Filename != "audio.webm" {
			t.Errorf("expected webm filename, got %s", hdr.Filename)
		}
		_, _ = w.Write([]byte(`{"text":"where is the pool"}`))
	})

	text, err := client.Transcribe(context.Background(), []byte{1, 2, 3}, "audio/webm")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "where is the pool" {
		t.Errorf("unexpected transcript %q", text)
	}
}

func TestClient_Synthesize(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["voice"] != "alloy" || req["input"] != "welcome" {
			t.Errorf("unexpected request: %v", req)
		}
		_, _ = w.Write([]byte("raw-audio-bytes"))
	})

	audio, err := client.Synthesize(context.Background(), "welcome", "alloy", "mp3")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if string(audio) != "raw-audio-bytes" {
		t.Errorf("unexpected audio %q", audio)
	}
}

func TestClient_BreakerOpensAfterFailures(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		http.Error(w, "down", http.StatusInternalServerError)
	})
	client.SetBreaker(resilience.NewBreaker(2, time.Minute))

	for range 3 {
		_, _ = client.Embed(context.Background(), "x")
	}
	// Third call is rejected by the open breaker without reaching the
	// server.
	if calls != 2 {
		t.Errorf("expected 2 upstream calls before the breaker opened, got %d", calls)
	}
}
