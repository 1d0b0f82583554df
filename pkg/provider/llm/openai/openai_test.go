package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/hifz/pkg/provider/llm"
)

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty apiKey")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("expected error for empty model")
	}
}

func TestConvertMessage_Roles(t *testing.T) {
	sys, err := convertMessage(llm.Message{Role: "system", Content: "x"})
	if err != nil || sys.OfSystem == nil {
		t.Fatalf("system: param=%+v err=%v", sys, err)
	}
	usr, err := convertMessage(llm.Message{Role: "user", Content: "x"})
	if err != nil || usr.OfUser == nil {
		t.Fatalf("user: param=%+v err=%v", usr, err)
	}
	asst, err := convertMessage(llm.Message{Role: "assistant", Content: "x", Name: "coach"})
	if err != nil || asst.OfAssistant == nil {
		t.Fatalf("assistant: param=%+v err=%v", asst, err)
	}
}

func TestConvertMessage_UnknownRole(t *testing.T) {
	if _, err := convertMessage(llm.Message{Role: "tool", Content: "x"}); err == nil {
		t.Fatal("expected error for unsupported role")
	}
}

func TestBuildParams_SystemPromptFirst(t *testing.T) {
	p, err := New("sk-test", "gpt-4o")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	params, err := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "be brief",
		Messages:     []llm.Message{llm.UserMessage("hi")},
		Temperature:  0.4,
		MaxTokens:    100,
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("first message should be the system prompt")
	}
	if string(params.Model) != "gpt-4o" {
		t.Errorf("model = %q, want gpt-4o", params.Model)
	}
}

func TestComplete_AgainstFakeServer(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "مرحبا"}}],
			"usage": {"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5}
		}`)
	}))
	defer srv.Close()

	p, err := New("sk-test", "gpt-4o", WithBaseURL(srv.URL+"/"), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{llm.UserMessage("hello")},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "مرحبا" {
		t.Errorf("Content = %q, want مرحبا", resp.Content)
	}
	if resp.FinishReason != llm.FinishStop || resp.Truncated() {
		t.Errorf("FinishReason = %q, Truncated = %v", resp.FinishReason, resp.Truncated())
	}
	if resp.Usage.TotalTokens != 5 {
		t.Errorf("TotalTokens = %d, want 5", resp.Usage.TotalTokens)
	}
	if gotBody["model"] != "gpt-4o" {
		t.Errorf("request model = %v, want gpt-4o", gotBody["model"])
	}
}

func TestComplete_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, err := New("sk-test", "gpt-4o", WithBaseURL(srv.URL+"/"), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{llm.UserMessage("hello")},
	}); err == nil {
		t.Fatal("expected error from failing server")
	}
}

func fakeCompletion(t *testing.T, choice string) *Provider {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id": "chatcmpl-2", "object": "chat.completion", "created": 1,
			"model": "gpt-4o", "choices": [`+choice+`]}`)
	}))
	t.Cleanup(srv.Close)

	p, err := New("sk-test", "gpt-4o", WithBaseURL(srv.URL+"/"), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestComplete_TruncatedReply(t *testing.T) {
	p := fakeCompletion(t, `{"index": 0, "finish_reason": "length",
		"message": {"role": "assistant", "content": "[{\"clozeText\": \"قل هو"}}`)

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{llm.UserMessage("questions")},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !resp.Truncated() {
		t.Errorf("Truncated() = false for finish_reason %q", resp.FinishReason)
	}
}

func TestComplete_Refusal(t *testing.T) {
	p := fakeCompletion(t, `{"index": 0, "finish_reason": "stop",
		"message": {"role": "assistant", "content": "", "refusal": "not allowed"}}`)

	_, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{llm.UserMessage("questions")},
	})
	if err == nil || !strings.Contains(err.Error(), "not allowed") {
		t.Errorf("err = %v, want the refusal text", err)
	}
}

func TestWithAppInfo_SendsAttributionHeaders(t *testing.T) {
	got := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id": "chatcmpl-3", "object": "chat.completion", "created": 1, "model": "m",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "[]"}}]}`)
	}))
	defer srv.Close()

	p, err := New("sk-or", "m", WithBaseURL(srv.URL+"/"), WithMaxRetries(0), WithAppInfo("https://hifz.example", "hifz"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{llm.UserMessage("hi")},
	}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	h := <-got
	if h.Get("HTTP-Referer") != "https://hifz.example" || h.Get("X-Title") != "hifz" {
		t.Errorf("attribution headers = %q / %q", h.Get("HTTP-Referer"), h.Get("X-Title"))
	}
	if h.Get("Authorization") != "Bearer sk-or" {
		t.Errorf("Authorization = %q", h.Get("Authorization"))
	}
}

func TestConvertMessage_UserName(t *testing.T) {
	msg, err := convertMessage(llm.Message{Role: "user", Content: "x", Name: "student"})
	if err != nil {
		t.Fatalf("convertMessage: %v", err)
	}
	if msg.OfUser == nil || msg.OfUser.Name.Value != "student" {
		t.Errorf("user name not set: %+v", msg.OfUser)
	}
}
