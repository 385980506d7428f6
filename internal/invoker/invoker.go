package invoker

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vnmchuo/llm-batch/internal/metrics"
	"github.com/vnmchuo/llm-batch/internal/provider"
	"github.com/vnmchuo/llm-batch/internal/provider/gemini"
	"github.com/vnmchuo/llm-batch/internal/provider/openai"
)

const (
	maxResponseBytes = 10 << 20
	maxErrorDetail   = 512
	cacheKeyPrefix   = "llmbatch:completion:"
)

// Cache stores successful completions between runs.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, text string) error
}

type TokenCounter interface {
	CountTokens(text string) int
}

type Invoker struct {
	cfg     provider.Config
	codec   provider.Codec
	client  *http.Client
	tracer  trace.Tracer
	cache   Cache
	metrics *metrics.Metrics
	tokens  TokenCounter
}

type Option func(*Invoker)

func WithHTTPClient(c *http.Client) Option {
	return func(i *Invoker) { i.client = c }
}

func WithTracer(t trace.Tracer) Option {
	return func(i *Invoker) { i.tracer = t }
}

func WithCache(c Cache) Option {
	return func(i *Invoker) { i.cache = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Invoker) { i.metrics = m }
}

func WithTokenCounter(tc TokenCounter) Option {
	return func(i *Invoker) { i.tokens = tc }
}

func CodecFor(style provider.Style) (provider.Codec, error) {
	switch style {
	case provider.StyleOpenAICompletions:
		return openai.New(), nil
	case provider.StyleGeminiGenerateContent:
		return gemini.New(), nil
	}
	return nil, fmt.Errorf("no codec for request style %q", style)
}

func New(cfg provider.Config, opts ...Option) (*Invoker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	codec, err := CodecFor(cfg.Style)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = provider.DefaultTimeout
	}

	inv := &Invoker{
		cfg:    cfg,
		codec:  codec,
		client: &http.Client{Timeout: cfg.Timeout},
		tracer: otel.GetTracerProvider().Tracer("llm-batch/invoker"),
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv, nil
}

// Invoke sends one prompt and reduces whatever comes back to a Result. It
// never returns an error: every failure mode is a Failure value.
func (i *Invoker) Invoke(ctx context.Context, prompt string) provider.Result {
	ctx, span := i.tracer.Start(ctx, "invoker.invoke")
	defer span.End()
	span.SetAttributes(
		attribute.String("style", string(i.cfg.Style)),
		attribute.Int("prompt.length", len(prompt)),
	)

	start := time.Now()
	if i.tokens != nil {
		n := i.tokens.CountTokens(prompt)
		span.SetAttributes(attribute.Int("prompt.tokens", n))
		i.metrics.AddPromptTokens(n)
	}

	key := i.cacheKey(prompt)
	if i.cache != nil {
		text, ok, err := i.cache.Get(ctx, key)
		if err != nil {
			log.Printf("[Cache] lookup failed, calling provider: %v", err)
		} else if ok {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			i.metrics.ObserveCacheLookup(true)
			res := provider.Success(text)
			i.finish(span, res, start)
			return res
		}
		i.metrics.ObserveCacheLookup(false)
	}

	res := i.call(ctx, span, prompt)

	if res.OK && i.cache != nil {
		if err := i.cache.Set(ctx, key, res.Text); err != nil {
			log.Printf("[Cache] store failed: %v", err)
		}
	}

	i.finish(span, res, start)
	return res
}

func (i *Invoker) call(ctx context.Context, span trace.Span, prompt string) provider.Result {
	body, err := i.codec.EncodeRequest(prompt, i.cfg)
	if err != nil {
		// Only reachable if the prompt cannot be represented as JSON.
		return provider.Failure(provider.KindMalformed, err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, i.cfg.EndpointURL, bytes.NewReader(body))
	if err != nil {
		return provider.Failure(provider.KindNetwork, err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if i.cfg.AuthHeaderName != "" {
		httpReq.Header.Set(i.cfg.AuthHeaderName, i.cfg.AuthHeaderValue)
	}

	resp, err := i.client.Do(httpReq)
	if err != nil {
		return provider.Failure(provider.KindNetwork, err.Error())
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return provider.Failure(provider.KindHTTP, httpErrorDetail(resp.StatusCode, respBody))
	}
	if err != nil {
		return provider.Failure(provider.KindNetwork, fmt.Sprintf("read response body: %v", err))
	}

	return i.codec.DecodeResponse(respBody)
}

func (i *Invoker) finish(span trace.Span, res provider.Result, start time.Time) {
	span.SetAttributes(attribute.String("result.kind", res.Outcome()))
	if !res.OK {
		span.SetStatus(codes.Error, string(res.Kind))
	}
	i.metrics.ObserveInvoke(string(i.cfg.Style), res.Outcome(), time.Since(start))
}

// cacheKey covers every input that can change the completion, except the
// auth value.
func (i *Invoker) cacheKey(prompt string) string {
	h := sha256.New()
	for _, part := range []string{
		string(i.cfg.Style),
		i.cfg.EndpointURL,
		i.cfg.Model,
		strconv.Itoa(i.cfg.MaxOutputTokens),
		prompt,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

func httpErrorDetail(status int, body []byte) string {
	reason := strings.TrimSpace(string(body))
	if len(reason) > maxErrorDetail {
		cut := maxErrorDetail
		for cut > 0 && !utf8.RuneStart(reason[cut]) {
			cut--
		}
		reason = reason[:cut] + "..."
	}
	if reason == "" {
		reason = http.StatusText(status)
	}
	return fmt.Sprintf("%d %s", status, reason)
}
