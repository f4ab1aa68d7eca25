// Package querygen produces natural-language search queries over the
// metadata collections, used to seed truth records and ablation runs.
package querygen

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/searchlab/ablate/internal/model"
	"github.com/searchlab/ablate/internal/resilience"
)

// ErrGeneration is returned when the model call or its output parsing
// fails. Generation has no fallback: a run that cannot obtain queries
// aborts rather than silently substituting canned ones.
var ErrGeneration = eris.New("querygen: generation failed")

// Generator produces queries targeting a set of collections.
type Generator interface {
	Generate(ctx context.Context, collections []string, count int) ([]model.Query, error)
}

// Config tunes the Anthropic-backed generator.
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int64
	Temperature float64
	// Context namespaces the deterministic query IDs, typically the run
	// or experiment name.
	Context string

	// Breaker tunes the circuit breaker over API calls. Zero values use
	// the resilience defaults.
	Breaker resilience.CircuitBreakerConfig
}

type anthropicGenerator struct {
	client  sdk.Client
	cfg     Config
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
}

// NewAnthropicGenerator builds a Generator backed by the Anthropic API.
// Calls are retried on transient API errors behind a circuit breaker, so a
// hard outage fails fast instead of burning the retry budget per call.
func NewAnthropicGenerator(cfg Config) Generator {
	if cfg.Model == "" {
		cfg.Model = "claude-haiku-4-5-20251001"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2048
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("anthropic", "create_message")
	return &anthropicGenerator{
		client:  sdk.NewClient(option.WithAPIKey(cfg.APIKey)),
		cfg:     cfg,
		breaker: resilience.NewCircuitBreaker(cfg.Breaker),
		retry:   retry,
	}
}

const systemPrompt = `You generate realistic personal-search queries for a
metadata search system. Each query is a short natural-language request a
person might type to find their own files, events, or activity, and should
be answerable from the listed metadata collections. Respond with a JSON
array of objects, each {"text": "...", "collections": ["..."]}, where
collections names the listed collections the query touches. No prose, no
markdown fences.`

func (g *anthropicGenerator) Generate(ctx context.Context, collections []string, count int) ([]model.Query, error) {
	prompt := buildPrompt(collections, count)

	msg, err := resilience.DoVal(ctx, g.retry, "create_message", func(ctx context.Context) (*sdk.Message, error) {
		return resilience.ExecuteVal(ctx, g.breaker, func(ctx context.Context) (*sdk.Message, error) {
			msg, err := g.client.Messages.New(ctx, sdk.MessageNewParams{
				Model:       sdk.Model(g.cfg.Model),
				MaxTokens:   g.cfg.MaxTokens,
				Temperature: sdk.Float(g.cfg.Temperature),
				System:      []sdk.TextBlockParam{{Text: systemPrompt}},
				Messages: []sdk.MessageParam{
					sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
				},
			})
			return msg, classifyAPIError(err)
		})
	})
	if err != nil {
		return nil, eris.Wrapf(ErrGeneration, "create message: %v", err)
	}

	zap.L().Info("querygen: model call",
		zap.String("model", g.cfg.Model),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
	)

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	queries, err := parseQueries(text.String(), collections, g.cfg.Context)
	if err != nil {
		return nil, err
	}
	if len(queries) == 0 {
		return nil, eris.Wrap(ErrGeneration, "model returned no usable queries")
	}
	if len(queries) > count {
		queries = queries[:count]
	}
	return queries, nil
}

// Static is a canned Generator for tests and dry runs. It never calls out;
// it hands back its queries up to the requested count.
type Static []model.Query

func (s Static) Generate(_ context.Context, _ []string, count int) ([]model.Query, error) {
	if len(s) == 0 {
		return nil, eris.Wrap(ErrGeneration, "no canned queries")
	}
	if count > len(s) {
		count = len(s)
	}
	return append([]model.Query(nil), s[:count]...), nil
}

// classifyAPIError marks overload and rate-limit responses as transient so
// the retry layer distinguishes them from, say, an invalid API key.
func classifyAPIError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
		return resilience.NewTransientError(err, apiErr.StatusCode)
	}
	return err
}

func buildPrompt(collections []string, count int) string {
	var b strings.Builder
	b.WriteString("Collections:\n")
	for _, c := range collections {
		b.WriteString("- ")
		b.WriteString(c)
		b.WriteString(" (")
		b.WriteString(string(model.KindOf(c)))
		b.WriteString(")\n")
	}
	b.WriteString("\nGenerate ")
	b.WriteString(strconv.Itoa(count))
	b.WriteString(" queries.")
	return b.String()
}

type rawQuery struct {
	Text        string   `json:"text"`
	Collections []string `json:"collections"`
}

// parseQueries decodes the model output, tolerating a markdown fence but
// nothing else. Queries naming unknown collections are dropped with a
// warning; an empty text is dropped silently.
func parseQueries(raw string, universe []string, idContext string) ([]model.Query, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var parsed []rawQuery
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, eris.Wrapf(ErrGeneration, "decode model output: %v", err)
	}

	known := make(map[string]struct{}, len(universe))
	for _, c := range universe {
		known[c] = struct{}{}
	}

	var out []model.Query
	for _, rq := range parsed {
		text := strings.TrimSpace(rq.Text)
		if text == "" {
			continue
		}
		var cols []string
		for _, c := range rq.Collections {
			if _, ok := known[c]; ok {
				cols = append(cols, c)
			} else {
				zap.L().Warn("querygen: dropping unknown collection",
					zap.String("collection", c),
					zap.String("query", text),
				)
			}
		}
		if len(cols) == 0 {
			continue
		}
		out = append(out, model.Query{
			ID:          model.NewQueryID(text, idContext),
			Text:        text,
			Collections: cols,
		})
	}
	return out, nil
}
