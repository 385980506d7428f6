package gemini

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vnmchuo/llm-batch/internal/provider"
)

// Codec speaks the Gemini generateContent contract. The model is part of the
// endpoint URL, so cfg.Model is not sent.
type Codec struct{}

func New() provider.Codec {
	return Codec{}
}

type geminiRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text *string `json:"text,omitempty"`
}

type generationConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens"`
}

// promptFeedback and finishReason are only consulted for a block reason, so
// they are kept raw and an odd shape there never hides a valid candidate.
type geminiResponse struct {
	Candidates     []geminiCandidate `json:"candidates"`
	PromptFeedback json.RawMessage   `json:"promptFeedback"`
}

type geminiCandidate struct {
	Content      geminiContent   `json:"content"`
	FinishReason json.RawMessage `json:"finishReason"`
}

func blockReason(raw json.RawMessage) string {
	var fb struct {
		BlockReason json.RawMessage `json:"blockReason"`
	}
	if err := json.Unmarshal(raw, &fb); err != nil {
		return ""
	}
	return provider.RawString(fb.BlockReason)
}

func (Codec) Name() string {
	return "gemini"
}

func (Codec) EncodeRequest(prompt string, cfg provider.Config) ([]byte, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: &prompt}}},
		},
		GenerationConfig: generationConfig{
			MaxOutputTokens: cfg.MaxOutputTokens,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal request: %w", err)
	}
	return body, nil
}

func (Codec) DecodeResponse(body []byte) provider.Result {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return provider.Failure(provider.KindMalformed, err.Error())
	}

	if len(resp.Candidates) == 0 {
		reason := provider.UnknownReason
		if br := blockReason(resp.PromptFeedback); br != "" {
			reason = br
		}
		return provider.Failure(provider.KindBlocked, reason)
	}

	// A candidate cut off by a safety filter comes back with a finishReason
	// and no parts.
	candidate := resp.Candidates[0]
	if len(candidate.Content.Parts) == 0 || candidate.Content.Parts[0].Text == nil {
		reason := provider.UnknownReason
		if fr := provider.RawString(candidate.FinishReason); fr != "" {
			reason = fr
		}
		return provider.Failure(provider.KindBlocked, reason)
	}

	return provider.Success(strings.TrimSpace(*candidate.Content.Parts[0].Text))
}
