// Package generator produces answers from retrieved context with an
// OpenAI-compatible chat model.
package generator

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/retry"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// SystemPrompt is sent ahead of every question.
const SystemPrompt = "You are a helpful assistant that answers questions based on the provided context."

const defaultBurst = 5

var tracer = otel.Tracer("ragd.generator")

var (
	// ErrInvalidConfig is returned for unusable generator settings.
	ErrInvalidConfig = errors.New("invalid generator config")

	// ErrEmptyAnswer is returned when the model produces no text.
	ErrEmptyAnswer = errors.New("model returned an empty answer")
)

// ContentGenerator is the part of a langchaingo model the generator uses.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Generator asks a chat model to answer a question from a context block.
type Generator struct {
	model       ContentGenerator
	modelName   string
	temperature float64
	maxTokens   int
	limiter     *rate.Limiter
	policy      retry.Policy
	logger      *logging.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(g *Generator) { g.temperature = t }
}

// WithMaxTokens caps the answer length. Zero leaves it to the server.
func WithMaxTokens(n int) Option {
	return func(g *Generator) { g.maxTokens = n }
}

// WithRequestsPerMinute rate limits calls. Zero or less disables the limit.
func WithRequestsPerMinute(n int) Option {
	return func(g *Generator) {
		if n <= 0 {
			g.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		burst := defaultBurst
		if n < burst {
			burst = n
		}
		g.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), burst)
	}
}

// WithRetryPolicy sets the retry policy for model calls.
func WithRetryPolicy(p retry.Policy) Option {
	return func(g *Generator) { g.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// New wraps model. Without options there is no rate limit and a single
// attempt per call.
func New(model ContentGenerator, modelName string, opts ...Option) *Generator {
	g := &Generator{
		model:       model,
		modelName:   modelName,
		temperature: 0.7,
		limiter:     rate.NewLimiter(rate.Inf, 0),
		policy:      retry.Policy{MaxAttempts: 1},
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// FromConfig builds a Generator backed by langchaingo's OpenAI client.
func FromConfig(cfg config.GeneratorConfig, logger *logging.Logger) (*Generator, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	apiKey := cfg.APIKey.Value()
	if apiKey == "" {
		// langchaingo refuses to start without a token; local servers ignore it
		apiKey = "placeholder"
	}
	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	return New(llm, cfg.Model,
		WithTemperature(cfg.Temperature),
		WithMaxTokens(cfg.MaxTokens),
		WithRequestsPerMinute(cfg.RequestsPerMinute),
		WithRetryPolicy(retry.FromConfig(cfg.Retry)),
		WithLogger(logger.Named("generator")),
	), nil
}

// Messages builds the chat for question over contextText.
func Messages(question, contextText string) []llms.MessageContent {
	return []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, SystemPrompt),
		llms.TextParts(schema.ChatMessageTypeHuman, fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextText, question)),
	}
}

// Generate returns the model's answer to question given contextText, trimmed
// of surrounding whitespace.
func (g *Generator) Generate(ctx context.Context, question, contextText string) (string, error) {
	ctx, span := tracer.Start(ctx, "Generator.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("model", g.modelName), attribute.Int("context_chars", len(contextText)))

	opts := []llms.CallOption{llms.WithTemperature(g.temperature)}
	if g.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(g.maxTokens))
	}
	messages := Messages(question, contextText)

	start := time.Now()
	var answer string
	err := g.policy.Do(ctx, g.logger, func(ctx context.Context) error {
		if err := g.limiter.Wait(ctx); err != nil {
			return retry.Permanent(fmt.Errorf("rate limiter: %w", err))
		}
		resp, err := g.model.GenerateContent(ctx, messages, opts...)
		if err != nil {
			return classify(err)
		}
		if len(resp.Choices) == 0 {
			return retry.Permanent(ErrEmptyAnswer)
		}
		answer = strings.TrimSpace(resp.Choices[0].Content)
		if answer == "" {
			return retry.Permanent(ErrEmptyAnswer)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		g.logger.Warn(ctx, "answer generation failed",
			zap.String("model", g.modelName),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return "", err
	}

	g.logger.Debug(ctx, "generated answer",
		zap.String("model", g.modelName),
		zap.Int("answer_chars", len(answer)),
		zap.Duration("duration", time.Since(start)),
	)
	return answer, nil
}

var statusPattern = regexp.MustCompile(`status code: (\d{3})`)

// classify marks client errors other than 408 and 429 as permanent. The
// OpenAI client only reports the status in its error text.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retry.Permanent(err)
	}
	m := statusPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return err
	}
	status, _ := strconv.Atoi(m[1])
	if status >= 400 && status < 500 && status != 408 && status != 429 {
		return retry.Permanent(err)
	}
	return err
}
