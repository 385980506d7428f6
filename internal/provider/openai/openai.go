package openai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vnmchuo/llm-batch/internal/provider"
)

// Codec speaks the legacy OpenAI text completions contract
// (POST /v1/completions, reply in choices[0].text).
type Codec struct{}

func New() provider.Codec {
	return Codec{}
}

type completionRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens"`
}

// Only choices is read strictly. error and finish_reason vary between
// compatible servers and are inspected loosely for a block reason.
type completionResponse struct {
	Choices []completionChoice `json:"choices"`
	Error   json.RawMessage    `json:"error"`
}

type completionChoice struct {
	Text         *string         `json:"text"`
	FinishReason json.RawMessage `json:"finish_reason"`
}

// errorReason accepts {"error":"..."} as well as {"error":{"message":"..."}}.
func errorReason(raw json.RawMessage) string {
	if s := provider.RawString(raw); s != "" {
		return s
	}
	var obj struct {
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	return provider.RawString(obj.Message)
}

func (Codec) Name() string {
	return "openai"
}

func (Codec) EncodeRequest(prompt string, cfg provider.Config) ([]byte, error) {
	model := cfg.Model
	if model == "" {
		model = provider.DefaultModel
	}
	body, err := json.Marshal(completionRequest{
		Model:     model,
		Prompt:    prompt,
		MaxTokens: cfg.MaxOutputTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}
	return body, nil
}

func (Codec) DecodeResponse(body []byte) provider.Result {
	var resp completionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return provider.Failure(provider.KindMalformed, err.Error())
	}

	if len(resp.Choices) == 0 {
		reason := provider.UnknownReason
		if msg := errorReason(resp.Error); msg != "" {
			reason = msg
		}
		return provider.Failure(provider.KindBlocked, reason)
	}

	choice := resp.Choices[0]
	if choice.Text == nil {
		reason := provider.UnknownReason
		if fr := provider.RawString(choice.FinishReason); fr != "" {
			reason = fr
		}
		return provider.Failure(provider.KindBlocked, reason)
	}

	return provider.Success(strings.TrimSpace(*choice.Text))
}
