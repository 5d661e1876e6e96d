package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/insurelens/insurelens-ai/internal/collaborator"
	"github.com/insurelens/insurelens-ai/internal/llm/types"
)

func TestNewClientDefaults(t *testing.T) {
	client, err := NewClient("", "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if client.baseURL != DefaultBaseURL {
		t.Errorf("expected default base url, got %s", client.baseURL)
	}
	if client.model != DefaultModel {
		t.Errorf("expected default model, got %s", client.model)
	}

	client, _ = NewClient("http://ollama.local:11434/", "mistral")
	if client.baseURL != "http://ollama.local:11434" {
		t.Errorf("expected trailing slash trimmed, got %s", client.baseURL)
	}
}

func TestComplete(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotReq)

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"message":           map[string]string{"role": "assistant", "content": "Cataract surgery has a 24 month waiting period."},
			"done":              true,
			"prompt_eval_count": 85,
			"eval_count":        12,
		})
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, "llama3")

	resp, err := client.Complete(context.Background(), []types.Message{
		{Role: "user", Content: "waiting period for cataract?"},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if gotReq.Model != "llama3" {
		t.Errorf("expected model llama3, got %q", gotReq.Model)
	}
	if gotReq.Stream {
		t.Error("non-streaming call must set stream=false")
	}
	if resp.Content != "Cataract surgery has a 24 month waiting period." {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if resp.Usage.InputTokens != 85 || resp.Usage.OutputTokens != 12 || resp.Usage.TotalTokens != 97 {
		t.Errorf("usage not taken from eval counts: %+v", resp.Usage)
	}
}

func TestCompleteStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("streaming call must set stream=true")
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"message":{"content":"No claim "},"done":false}`)
		fmt.Fprintln(w, `{"message":{"content":"bonus grows yearly."},"done":false}`)
		fmt.Fprintln(w, `{"message":{"content":""},"done":true,"prompt_eval_count":40,"eval_count":8}`)
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, "llama3")

	stream, err := client.CompleteStream(context.Background(), []types.Message{{Role: "user", Content: "ncb?"}})
	if err != nil {
		t.Fatalf("CompleteStream: %v", err)
	}

	var text string
	var final types.StreamChunk
	for chunk := range stream {
		if chunk.Err != nil {
			t.Fatalf("stream error: %v", chunk.Err)
		}
		if chunk.Done {
			final = chunk
			continue
		}
		text += chunk.Content
	}

	if text != "No claim bonus grows yearly." {
		t.Errorf("unexpected streamed text %q", text)
	}
	if !final.Done {
		t.Fatal("expected a done chunk")
	}
	if final.Usage.InputTokens != 40 || final.Usage.OutputTokens != 8 {
		t.Errorf("usage not carried on done chunk: %+v", final.Usage)
	}
}

func TestServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, "llama3")

	_, err := client.Complete(context.Background(), []types.Message{{Role: "user", Content: "hi"}})
	if err == nil {
		t.Fatal("expected error")
	}
	if !collaborator.IsTransient(err) {
		t.Errorf("5xx should be transient: %v", err)
	}
}

func TestMissingModelErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model 'nope' not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, "nope")

	_, err := client.Complete(context.Background(), []types.Message{{Role: "user", Content: "hi"}})
	if err == nil {
		t.Fatal("expected error")
	}
	if collaborator.IsTransient(err) {
		t.Errorf("missing model must not be transient: %v", err)
	}
}

func TestConnectionFailureIsTransient(t *testing.T) {
	client, _ := NewClient("http://127.0.0.1:1", "llama3")

	_, err := client.Complete(context.Background(), []types.Message{{Role: "user", Content: "hi"}})
	if err == nil {
		t.Fatal("expected error")
	}
	if !collaborator.IsTransient(err) {
		t.Errorf("connection failure should be transient: %v", err)
	}
}

func TestCountTokens(t *testing.T) {
	client, _ := NewClient("", "")

	tokens, err := client.CountTokens(context.Background(), []types.Message{
		{Role: "user", Content: "Compare the two family floater plans for me please."},
	})
	if err != nil {
		t.Fatalf("CountTokens: %v", err)
	}
	if tokens <= 0 {
		t.Errorf("expected positive estimate, got %d", tokens)
	}
}
