package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

type Style string

const (
	StyleOpenAICompletions     Style = "openai-completions"
	StyleGeminiGenerateContent Style = "gemini-generate-content"
)

func ParseStyle(s string) (Style, error) {
	switch Style(strings.ToLower(strings.TrimSpace(s))) {
	case StyleOpenAICompletions:
		return StyleOpenAICompletions, nil
	case StyleGeminiGenerateContent:
		return StyleGeminiGenerateContent, nil
	}
	return "", fmt.Errorf("unknown request style %q", s)
}

const (
	DefaultTimeout = 30 * time.Second
	DefaultModel   = "gemma-2b"
)

// Config describes one LLM endpoint. It is built once at startup and never
// mutated afterwards.
type Config struct {
	EndpointURL     string
	AuthHeaderName  string
	AuthHeaderValue string
	Style           Style
	MaxOutputTokens int
	Model           string // OpenAI style only
	Timeout         time.Duration
}

func (c Config) Validate() error {
	if c.EndpointURL == "" {
		return errors.New("endpoint url is required")
	}
	u, err := url.Parse(c.EndpointURL)
	if err != nil {
		return fmt.Errorf("invalid endpoint url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid endpoint url %q: want http(s)://host/...", c.EndpointURL)
	}
	if _, err := ParseStyle(string(c.Style)); err != nil {
		return err
	}
	if c.MaxOutputTokens <= 0 {
		return fmt.Errorf("max output tokens must be positive, got %d", c.MaxOutputTokens)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	return nil
}

// String never includes the auth header value.
func (c Config) String() string {
	return fmt.Sprintf("style=%s endpoint=%s auth_header=%s model=%s max_tokens=%d timeout=%s",
		c.Style, c.EndpointURL, c.AuthHeaderName, c.Model, c.MaxOutputTokens, c.Timeout)
}

type ErrorKind string

const (
	KindNetwork   ErrorKind = "NetworkError"
	KindHTTP      ErrorKind = "HttpError"
	KindMalformed ErrorKind = "MalformedResponse"
	KindBlocked   ErrorKind = "EmptyOrBlocked"
)

// UnknownReason is reported when a provider blocks or returns nothing
// without saying why.
const UnknownReason = "unknown reason"

// Result is the outcome of a single invocation: either OK with Text, or a
// failure described by Kind and Detail.
type Result struct {
	OK     bool
	Text   string
	Kind   ErrorKind
	Detail string
}

func Success(text string) Result {
	return Result{OK: true, Text: text}
}

func Failure(kind ErrorKind, detail string) Result {
	return Result{Kind: kind, Detail: detail}
}

// Display flattens the result into the text stored in an output record.
func (r Result) Display() string {
	if r.OK {
		return r.Text
	}
	return "Error: " + r.Detail
}

// Outcome is a low-cardinality label for logs and metrics.
func (r Result) Outcome() string {
	if r.OK {
		return "success"
	}
	return string(r.Kind)
}

// Codec translates between a prompt and one provider's wire format.
type Codec interface {
	Name() string
	EncodeRequest(prompt string, cfg Config) ([]byte, error)
	// DecodeResponse interprets a 2xx body. It only ever returns Success,
	// MalformedResponse or EmptyOrBlocked results.
	DecodeResponse(body []byte) Result
}

// RawString returns raw as a Go string when it holds a JSON string, and ""
// for anything else (absent, null, number, object).
func RawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
