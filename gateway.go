package personaquiz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Turn is a prior message replayed to the model
type Turn struct {
	Role    ChatRole
	Content string
}

// Request is a single structured call to the model
type Request struct {
	Shape       Shape
	System      string
	User        string
	History     []Turn
	Temperature float32
	MaxTokens   int
}

// Caller is the contract of the API gateway used by the question maker and
// the analyst
type Caller interface {
	Call(ctx context.Context, req Request, out any) error
}

var (
	clientsMu sync.Mutex
	clients   = make(map[ClientConfig]*openai.Client)
)

// sharedClient returns the process-wide client for cfg, building it on first use
func sharedClient(cfg ClientConfig) *openai.Client {
	clientsMu.Lock()
	defer clientsMu.Unlock()

	if c, ok := clients[cfg]; ok {
		return c
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	c := openai.NewClientWithConfig(oc)
	clients[cfg] = c
	return c
}

// Gateway wraps outbound calls to the chat-completion endpoint. It does not
// retry; that is the executor's job.
type Gateway struct {
	cfg        ClientConfig
	logger     *zap.Logger
	transcript *LLMLogger

	once   sync.Once
	client *openai.Client
}

// NewGateway validates cfg and returns a gateway. The HTTP client itself is
// built lazily on the first call.
func NewGateway(cfg ClientConfig, logger *zap.Logger) (*Gateway, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Gateway{cfg: cfg, logger: orNop(logger)}, nil
}

// SetTranscript attaches a transcript logger to the gateway
func (g *Gateway) SetTranscript(t *LLMLogger) {
	g.transcript = t
}

// Model returns the configured model name
func (g *Gateway) Model() string {
	return g.cfg.Model
}

func (g *Gateway) handle() *openai.Client {
	g.once.Do(func() {
		g.client = sharedClient(g.cfg)
	})
	return g.client
}

// Call sends req and decodes the JSON object of the reply into out
func (g *Gateway) Call(ctx context.Context, req Request, out any) error {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: req.System,
	})
	for _, turn := range req.History {
		role := openai.ChatMessageRoleUser
		if turn.Role == ChatRoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.User,
	})

	if g.transcript != nil {
		g.transcript.LogLLMRequest(req.Shape, req.System, req.User)
	}

	start := time.Now()
	resp, err := g.handle().CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	duration := time.Since(start)
	apiCallDuration.WithLabelValues(string(req.Shape)).Observe(duration.Seconds())

	if err != nil {
		err = classifyTransport(ctx, err)
		g.fail(req.Shape, err, duration)
		return err
	}
	if resp.Usage.TotalTokens > 0 {
		apiTokens.WithLabelValues("prompt").Add(float64(resp.Usage.PromptTokens))
		apiTokens.WithLabelValues("completion").Add(float64(resp.Usage.CompletionTokens))
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		err := &MalformedResponse{Shape: req.Shape, Reason: "empty message body"}
		g.fail(req.Shape, err, duration)
		return err
	}

	body := CleanJSONBlock(resp.Choices[0].Message.Content)
	if g.transcript != nil {
		g.transcript.LogLLMResponse(req.Shape, body)
	}
	if err := ValidateShape(req.Shape, body); err != nil {
		g.fail(req.Shape, err, duration)
		return err
	}
	if out != nil {
		if err := json.Unmarshal([]byte(body), out); err != nil {
			err = &MalformedResponse{Shape: req.Shape, Reason: "cannot decode body", Body: body, Err: err}
			g.fail(req.Shape, err, duration)
			return err
		}
	}

	apiCalls.WithLabelValues(string(req.Shape), "success").Inc()
	g.logger.Debug("model call succeeded",
		zap.String("shape", string(req.Shape)),
		zap.String("model", g.cfg.Model),
		zap.Duration("duration", duration),
		zap.Int("total_tokens", resp.Usage.TotalTokens))
	return nil
}

func (g *Gateway) fail(shape Shape, err error, duration time.Duration) {
	apiCalls.WithLabelValues(string(shape), errorKind(err)).Inc()
	if g.transcript != nil {
		g.transcript.LogLLMError(shape, err)
	}
	g.logger.Debug("model call failed",
		zap.String("shape", string(shape)),
		zap.Duration("duration", duration),
		zap.Error(err))
}

// classifyTransport maps go-openai errors onto TransportError. Deadline
// errors are returned as is so the executor can report a timeout.
func classifyTransport(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("chat completion aborted: %w", ctxErr)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &TransportError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := "request failed"
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &TransportError{StatusCode: reqErr.HTTPStatusCode, Message: msg, Err: err}
	}
	return &TransportError{Message: err.Error(), Err: err}
}
