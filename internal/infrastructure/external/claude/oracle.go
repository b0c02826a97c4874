// Package claude implements the AI oracle: the single place the gateway
// talks to the Anthropic API. Handlers never call the SDK directly; they go
// through Oracle so the circuit breaker and timeout policy apply everywhere.
package claude

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/psyhub-dev/psyhub-gateway/pkg/circuitbreaker"
	"github.com/psyhub-dev/psyhub-gateway/pkg/logger"
)

// ErrOracleUnavailable is returned when the circuit is open or the call
// failed. Handlers map it to a user-visible "try later" reply and leave the
// FSM state untouched.
var ErrOracleUnavailable = errors.New("claude: oracle unavailable")

// Config holds oracle settings.
type Config struct {
	// APIKey is the Anthropic API key.
	APIKey string

	// FastModel serves routing and classification calls.
	FastModel string

	// StrongModel serves generation calls (questions, reports, replies).
	StrongModel string

	// RequestTimeout bounds one API call.
	RequestTimeout time.Duration

	// Logger for structured logging.
	Logger *logger.Logger
}

// Oracle is the shared AI client.
type Oracle struct {
	client      anthropic.Client
	fastModel   string
	strongModel string
	timeout     time.Duration
	breaker     *circuitbreaker.Breaker
	log         *logger.Logger
}

// New creates an oracle with a circuit breaker around the API.
func New(cfg Config) *Oracle {
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	bcfg := circuitbreaker.DefaultConfig("claude")
	bcfg.OnStateChange = func(name string, from, to circuitbreaker.State) {
		log.Warn("oracle circuit state change",
			logger.Component(name),
			logger.String("from", from.String()),
			logger.String("to", to.String()))
	}

	return &Oracle{
		client:      anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		fastModel:   cfg.FastModel,
		strongModel: cfg.StrongModel,
		timeout:     cfg.RequestTimeout,
		breaker:     circuitbreaker.New(bcfg),
		log:         log,
	}
}

// AskFast runs a prompt on the fast model. Used for routing, stop checks,
// and classification where latency matters more than depth.
func (o *Oracle) AskFast(ctx context.Context, system, user string, maxTokens int) (string, error) {
	return o.ask(ctx, o.fastModel, system, user, maxTokens)
}

// Ask runs a prompt on the strong model.
func (o *Oracle) Ask(ctx context.Context, system, user string, maxTokens int) (string, error) {
	return o.ask(ctx, o.strongModel, system, user, maxTokens)
}

func (o *Oracle) ask(ctx context.Context, model, system, user string, maxTokens int) (string, error) {
	var text string

	err := o.breaker.Execute(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()

		started := time.Now()
		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(model),
			MaxTokens: int64(maxTokens),
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
			},
		}
		if system != "" {
			params.System = []anthropic.TextBlockParam{{Text: system}}
		}

		msg, err := o.client.Messages.New(callCtx, params)
		if err != nil {
			o.log.Error("oracle call failed",
				logger.String("model", model), logger.Latency(time.Since(started)), logger.Err(err))
			return err
		}

		var b strings.Builder
		for _, block := range msg.Content {
			if block.Type == "text" {
				b.WriteString(block.Text)
			}
		}
		text = b.String()

		o.log.Debug("oracle call",
			logger.String("model", model), logger.Latency(time.Since(started)),
			logger.Int64("input_tokens", msg.Usage.InputTokens),
			logger.Int64("output_tokens", msg.Usage.OutputTokens))
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	return text, nil
}
