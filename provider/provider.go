package provider

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/lumina/config"
	anthropic_provider "github.com/mohammad-safakhou/lumina/provider/anthropic"
	"github.com/mohammad-safakhou/lumina/provider/gemini"
	"github.com/mohammad-safakhou/lumina/provider/models"
	openai_provider "github.com/mohammad-safakhou/lumina/provider/openai"
)

// Client represents different LLM providers
type Client string

const (
	OpenAI    Client = "openai"
	Anthropic Client = "anthropic"
	Gemini    Client = "gemini"
)

type (
	Schema  = models.Schema
	Message = models.Message
	Media   = models.Media
)

// Provider is the interface that all LLM implementations must satisfy.
// A non-nil schema asks for a JSON document matching it.
type Provider interface {
	Generate(ctx context.Context, prompt string, schema *Schema) (string, error)
	Chat(ctx context.Context, history []Message, message string) (string, error)
}

// MediaProvider is implemented by providers with multimodal endpoints.
type MediaProvider interface {
	AnalyzeImage(ctx context.Context, image Media, prompt string) (string, error)
	GenerateImage(ctx context.Context, prompt, aspectRatio string) (Media, error)
	Transcribe(ctx context.Context, audio Media) (string, error)
	Speak(ctx context.Context, text, voice string) (Media, error)
}

// NewProvider creates a new LLM client based on the provided configuration
func NewProvider(cfg config.LLMProvider) (Provider, error) {
	switch Client(cfg.Type) {
	case OpenAI:
		return openai_provider.NewOpenAIClient(cfg), nil
	case Anthropic:
		return anthropic_provider.New(cfg), nil
	case Gemini:
		return gemini.New(cfg), nil
	default:
		return nil, fmt.Errorf("%w: llm provider %q", models.ErrUnsupported, cfg.Type)
	}
}

// Set holds the providers selected for each routing family.
type Set struct {
	Drafting Provider
	Editing  Provider
	Media    MediaProvider // nil when the media route has no multimodal support
}

// NewSet builds one client per configured provider and resolves the routes.
func NewSet(cfg config.LLMConfig) (*Set, error) {
	built := make(map[string]Provider, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		p, err := NewProvider(pc)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		built[name] = p
	}
	lookup := func(route, name string) (Provider, error) {
		p, ok := built[name]
		if !ok {
			return nil, fmt.Errorf("llm.routing.%s: unknown provider %q", route, name)
		}
		return p, nil
	}

	set := &Set{}
	var err error
	if set.Drafting, err = lookup("drafting", cfg.Routing.Drafting); err != nil {
		return nil, err
	}
	if set.Editing, err = lookup("editing", cfg.Routing.Editing); err != nil {
		return nil, err
	}
	media, err := lookup("media", cfg.Routing.Media)
	if err != nil {
		return nil, err
	}
	if mp, ok := media.(MediaProvider); ok {
		set.Media = mp
	}
	return set, nil
}
