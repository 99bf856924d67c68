package service_test

import (
	"context"
	"sync"
	"time"

	"github.com/stayline/concierge/internal/config"
	"github.com/stayline/concierge/internal/port/llm"
	"github.com/stayline/concierge/internal/port/messagequeue"
	"github.com/stayline/concierge/internal/port/vectorstore"
)

// fakeLLM returns scripted responses and records the requests it saw.
type fakeLLM struct {
	mu        sync.Mutex
	responses []*llm.ChatResponse
	err       error
	requests  []llm.ChatRequest
}

func (f *fakeLLM) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return &llm.ChatResponse{Reply: "ok"}, nil
	}
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return resp, nil
}

func (f *fakeLLM) lastRequest() llm.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

// fakeEmbedder returns a fixed vector for any text.
type fakeEmbedder struct {
	vector []float32
	err    error
	calls  int
	mu     sync.Mutex
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

// fakeVectorStore serves canned results and captures upserts.
type fakeVectorStore struct {
	mu       sync.Mutex
	results  []vectorstore.QueryResult
	queryErr error
	upserted map[string][]vectorstore.Record // namespace -> records
}

func (f *fakeVectorStore) Upsert(_ context.Context, namespace string, records []vectorstore.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upserted == nil {
		f.upserted = make(map[string][]vectorstore.Record)
	}
	f.upserted[namespace] = append(f.upserted[namespace], records...)
	return nil
}

func (f *fakeVectorStore) Query(_ context.Context, _ string, _ []float32, _ int, _ map[string]any) ([]vectorstore.QueryResult, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.results, nil
}

func (f *fakeVectorStore) Close() error { return nil }

// captureQueue records published messages per subject.
type captureQueue struct {
	mu        sync.Mutex
	published []publishedMsg
	err       error
}

type publishedMsg struct {
	subject string
	data    []byte
}

func (q *captureQueue) Publish(_ context.Context, subject string, data []byte) error {
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, publishedMsg{subject: subject, data: data})
	return nil
}

func (q *captureQueue) Subscribe(_ context.Context, _ string, _ messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (q *captureQueue) Close() error { return nil }

func (q *captureQueue) last() publishedMsg {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.published[len(q.published)-1]
}

// testConfig returns a Config with defaults suitable for unit tests.
func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.AccessTokenExpiry = time.Minute
	return &cfg
}
