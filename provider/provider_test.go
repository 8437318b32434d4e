package provider

import (
	"errors"
	"testing"

	"github.com/mohammad-safakhou/lumina/config"
	"github.com/mohammad-safakhou/lumina/provider/models"
)

func TestNewProviderUnsupported(t *testing.T) {
	_, err := NewProvider(config.LLMProvider{Type: "cohere"})
	if !errors.Is(err, models.ErrUnsupported) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestNewSetRoutesMediaOnlyToMultimodal(t *testing.T) {
	cfg := config.LLMConfig{
		Providers: map[string]config.LLMProvider{
			"g": {Type: "gemini"},
			"o": {Type: "openai"},
		},
		Routing: config.LLMRoutingConfig{Drafting: "o", Editing: "g", Media: "o"},
	}
	set, err := NewSet(cfg)
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	if set.Drafting == nil || set.Editing == nil {
		t.Fatalf("expected drafting and editing providers")
	}
	if set.Media != nil {
		t.Fatalf("openai should not satisfy MediaProvider")
	}

	cfg.Routing.Media = "g"
	set, err = NewSet(cfg)
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	if set.Media == nil {
		t.Fatalf("gemini should satisfy MediaProvider")
	}
}

func TestNewSetUnknownRoute(t *testing.T) {
	cfg := config.LLMConfig{
		Providers: map[string]config.LLMProvider{"g": {Type: "gemini"}},
		Routing:   config.LLMRoutingConfig{Drafting: "missing", Editing: "g", Media: "g"},
	}
	if _, err := NewSet(cfg); err == nil {
		t.Fatalf("expected error for unknown route")
	}
}
