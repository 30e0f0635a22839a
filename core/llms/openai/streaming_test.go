package openai

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/koscakluka/ema-duplex/core/llms"
)

func newStreamingServer(t *testing.T, events ...string) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, event := range events {
			fmt.Fprintf(w, "data: %s\n\n", event)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(server.Close)
	return server
}

func TestStreamYieldsContentThenAssembledToolCalls(t *testing.T) {
	server := newStreamingServer(t,
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"role":"assistant","content":"Nice to "}}]}`,
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"meet you."}}]}`,
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"fill_field","arguments":"{\"field\":"}}]}}]}`,
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"fullName\",\"value\":\"John\"}"}}]},"finish_reason":"tool_calls"}]}`,
	)

	client := NewClient("key", "gpt-4o-mini", WithBaseURL(server.URL+"/v1"), WithHTTPClient(server.Client()))
	stream := client.PromptWithStream(context.Background(), llms.WithMessages(llms.UserMessage("My name is John")))

	var content string
	var calls []llms.ToolCall
	for chunk, err := range stream.Chunks(context.Background()) {
		if err != nil {
			t.Fatalf("unexpected stream error: %v", err)
		}
		switch chunk := chunk.(type) {
		case llms.StreamContentChunk:
			content += chunk.Content()
		case llms.StreamToolCallChunk:
			calls = append(calls, chunk.ToolCall())
		}
	}

	if content != "Nice to meet you." {
		t.Fatalf("unexpected content %q", content)
	}
	if len(calls) != 1 {
		t.Fatalf("expected one tool call, got %d", len(calls))
	}
	if calls[0].ID != "call_1" || calls[0].Arguments != `{"field":"fullName","value":"John"}` {
		t.Fatalf("unexpected tool call %+v", calls[0])
	}
}

func TestStreamYieldsErrorOnFailedRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient("key", "gpt-4o-mini", WithBaseURL(server.URL+"/v1"), WithHTTPClient(server.Client()))
	stream := client.PromptWithStream(context.Background())

	var gotErr error
	for _, err := range stream.Chunks(context.Background()) {
		if err != nil {
			gotErr = err
		}
	}
	if gotErr == nil {
		t.Fatalf("expected stream error")
	}
}
