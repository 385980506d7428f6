package openai

import (
	"encoding/json"
	"testing"

	"github.com/vnmchuo/llm-batch/internal/provider"
)

func TestEncodeRequest(t *testing.T) {
	body, err := New().EncodeRequest("Say hi", provider.Config{Model: "grok-1", MaxOutputTokens: 150})
	if err != nil {
		t.Fatalf("EncodeRequest failed: %v", err)
	}

	var got map[string]interface{}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if got["model"] != "grok-1" {
		t.Errorf("Expected model 'grok-1', got %v", got["model"])
	}
	if got["prompt"] != "Say hi" {
		t.Errorf("Expected prompt 'Say hi', got %v", got["prompt"])
	}
	if got["max_tokens"] != float64(150) {
		t.Errorf("Expected max_tokens 150, got %v", got["max_tokens"])
	}
}

func TestEncodeRequest_DefaultModel(t *testing.T) {
	body, _ := New().EncodeRequest("x", provider.Config{MaxOutputTokens: 1})

	var got completionRequest
	_ = json.Unmarshal(body, &got)
	if got.Model != provider.DefaultModel {
		t.Errorf("Expected default model %s, got %s", provider.DefaultModel, got.Model)
	}
}

func TestDecodeResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
		want provider.Result
	}{
		{"trims text", `{"choices":[{"text":" Hello "}]}`, provider.Success("Hello")},
		{"empty text is still text", `{"choices":[{"text":""}]}`, provider.Success("")},
		{"empty choices", `{"choices":[]}`, provider.Failure(provider.KindBlocked, provider.UnknownReason)},
		{"empty object", `{}`, provider.Failure(provider.KindBlocked, provider.UnknownReason)},
		{"error message", `{"error":{"message":"model overloaded"}}`, provider.Failure(provider.KindBlocked, "model overloaded")},
		{"missing text", `{"choices":[{"finish_reason":"content_filter"}]}`, provider.Failure(provider.KindBlocked, "content_filter")},
		{"numeric id ignored", `{"id":123,"choices":[{"text":" hi "}]}`, provider.Success("hi")},
		{"string error ignored on success", `{"choices":[{"text":" hi "}],"error":"ignored"}`, provider.Success("hi")},
		{"string error", `{"error":"model not loaded"}`, provider.Failure(provider.KindBlocked, "model not loaded")},
		{"error without message", `{"error":{"code":500}}`, provider.Failure(provider.KindBlocked, provider.UnknownReason)},
		{"non-string message", `{"error":{"message":42}}`, provider.Failure(provider.KindBlocked, provider.UnknownReason)},
		{"null finish reason", `{"choices":[{"finish_reason":null}]}`, provider.Failure(provider.KindBlocked, provider.UnknownReason)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New().DecodeResponse([]byte(tt.body))
			if got != tt.want {
				t.Errorf("Expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestDecodeResponse_Malformed(t *testing.T) {
	for _, body := range []string{`not json`, `[1,2]`, `{"choices":"nope"}`} {
		got := New().DecodeResponse([]byte(body))
		if got.OK || got.Kind != provider.KindMalformed {
			t.Errorf("%s: expected MalformedResponse, got %+v", body, got)
		}
		if got.Detail == "" {
			t.Errorf("%s: expected parse error detail", body)
		}
	}
}

func TestName(t *testing.T) {
	if New().Name() != "openai" {
		t.Errorf("Expected 'openai', got %s", New().Name())
	}
}
