// Package openai provides an LLM provider backed by the OpenAI Chat
// Completions API. Any OpenAI-compatible endpoint works through
// [WithBaseURL]; the default deployment points it at OpenRouter.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/hifz/pkg/provider/llm"
)

// Provider implements llm.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
}

var _ llm.Provider = (*Provider)(nil)

type settings struct {
	baseURL      string
	organization string
	timeout      time.Duration
	maxRetries   int
	headers      map[string]string
}

// Option configures a [Provider].
type Option func(*settings)

// WithBaseURL points the client at an OpenAI-compatible gateway, for example
// "https://openrouter.ai/api/v1".
func WithBaseURL(url string) Option {
	return func(s *settings) { s.baseURL = url }
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(s *settings) { s.organization = org }
}

// WithTimeout bounds each HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithMaxRetries sets how often the SDK retries failed requests. Negative
// values keep the SDK default.
func WithMaxRetries(n int) Option {
	return func(s *settings) { s.maxRetries = n }
}

// WithAppInfo sends the attribution headers OpenRouter uses to list the
// calling app. Empty values are skipped.
func WithAppInfo(referer, title string) Option {
	return func(s *settings) {
		if referer != "" {
			s.headers["HTTP-Referer"] = referer
		}
		if title != "" {
			s.headers["X-Title"] = title
		}
	}
}

// New returns a provider that calls model with apiKey.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	switch {
	case apiKey == "":
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	case model == "":
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	s := settings{maxRetries: -1, headers: map[string]string{}}
	for _, o := range opts {
		o(&s)
	}
	return &Provider{client: oai.NewClient(s.requestOptions(apiKey)...), model: model}, nil
}

func (s settings) requestOptions(apiKey string) []option.RequestOption {
	out := []option.RequestOption{option.WithAPIKey(apiKey)}
	if s.baseURL != "" {
		out = append(out, option.WithBaseURL(s.baseURL))
	}
	if s.organization != "" {
		out = append(out, option.WithOrganization(s.organization))
	}
	if s.timeout > 0 {
		out = append(out, option.WithHTTPClient(&http.Client{Timeout: s.timeout}))
	}
	if s.maxRetries >= 0 {
		out = append(out, option.WithMaxRetries(s.maxRetries))
	}
	for k, v := range s.headers {
		out = append(out, option.WithHeader(k, v))
	}
	return out
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("openai: build params: %w", err)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices in response")
	}

	choice := resp.Choices[0]
	if choice.Message.Refusal != "" && choice.Message.Content == "" {
		return nil, fmt.Errorf("openai: model refused: %s", choice.Message.Refusal)
	}
	return &llm.CompletionResponse{
		Content:      choice.Message.Content,
		FinishReason: strings.ToLower(string(choice.FinishReason)),
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// buildParams converts a CompletionRequest into OpenAI SDK params.
func (p *Provider) buildParams(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	var messages []oai.ChatCompletionMessageParamUnion

	if req.SystemPrompt != "" {
		messages = append(messages, oai.SystemMessage(req.SystemPrompt))
	}

	for _, m := range req.Messages {
		msg, err := convertMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		messages = append(messages, msg)
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: messages,
	}

	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}

	return params, nil
}

// convertMessage maps a chat message onto the SDK union. Tool messages are
// not supported.
func convertMessage(m llm.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case "system":
		return oai.SystemMessage(m.Content), nil
	case "user":
		msg := oai.UserMessage(m.Content)
		if m.Name != "" {
			msg.OfUser.Name = oai.String(m.Name)
		}
		return msg, nil
	case "assistant":
		var asst oai.ChatCompletionAssistantMessageParam
		if m.Content != "" {
			asst.Content.OfString = oai.String(m.Content)
		}
		if m.Name != "" {
			asst.Name = oai.String(m.Name)
		}
		return oai.ChatCompletionMessageParamUnion{OfAssistant: &asst}, nil
	}
	return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: unknown message role %q", m.Role)
}
