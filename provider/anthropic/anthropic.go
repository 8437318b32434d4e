package anthropic_provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/mohammad-safakhou/lumina/config"
	"github.com/mohammad-safakhou/lumina/provider/models"
)

const (
	name             = "anthropic"
	defaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 4096
)

// Client implements the provider interface on the Anthropic Messages API.
type Client struct {
	client      anthropic.Client
	model       anthropic.Model
	maxTokens   int64
	temperature float64
	hasKey      bool
}

// New creates a client. Calls made without an API key fail with a credentials error.
func New(cfg config.LLMProvider) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Client{
		client:      anthropic.NewClient(opts...),
		model:       anthropic.Model(model),
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		hasKey:      cfg.APIKey != "",
	}
}

// Generate sends a single user turn. A schema is passed as a system instruction
// because the Messages API has no native response schema.
func (c *Client) Generate(ctx context.Context, prompt string, schema *models.Schema) (string, error) {
	var system string
	if schema != nil {
		system = "Respond with a single JSON object that conforms to this JSON schema. Output only the JSON, no prose.\n" + string(schema.Doc)
	}
	out, err := c.complete(ctx, system, []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
	})
	if err != nil {
		return "", err
	}
	if schema != nil {
		out = models.ExtractJSON(out)
	}
	return out, nil
}

// Chat replays history and appends the new user message.
func (c *Client) Chat(ctx context.Context, history []models.Message, message string) (string, error) {
	msgs := make([]anthropic.MessageParam, 0, len(history)+1)
	for _, m := range history {
		if m.Role == models.RoleModel || m.Role == "assistant" {
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Text)))
			continue
		}
		msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Text)))
	}
	msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(message)))
	return c.complete(ctx, "", msgs)
}

func (c *Client) complete(ctx context.Context, system string, msgs []anthropic.MessageParam) (string, error) {
	if !c.hasKey {
		return "", models.MissingCredentials(name)
	}
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  msgs,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{
			{Type: "text", Text: system},
		}
	}
	if c.temperature > 0 {
		params.Temperature = anthropic.Float(c.temperature)
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", classify(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", models.NewError(name, models.KindPayload, fmt.Errorf("%w: no text content", models.ErrEmptyResponse))
	}
	return sb.String(), nil
}

func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		kind := models.KindStatus
		if apiErr.StatusCode == 401 || apiErr.StatusCode == 403 {
			kind = models.KindCredentials
		}
		return &models.Error{Provider: name, Kind: kind, StatusCode: apiErr.StatusCode, Err: err}
	}
	return models.NewError(name, models.KindTransport, err)
}
