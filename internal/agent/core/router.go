package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/mohammad-safakhou/lumina/internal/agent/telemetry"
	"github.com/mohammad-safakhou/lumina/provider/models"
)

type routerOutput struct {
	NeedsResearch *bool    `json:"needsResearch" jsonschema:"description=Whether the topic requires online research"`
	SearchQueries []string `json:"searchQueries" jsonschema:"description=3-4 specific search queries to gather information"`
	Reasoning     string   `json:"reasoning" jsonschema:"description=Why research is or isn't needed"`
}

var routerSchema = models.MustSchemaFor("router_decision", &routerOutput{})

// Router decides whether a topic needs research.
type Router struct {
	llm       LLMProvider
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

func NewRouter(llm LLMProvider, tel *telemetry.Telemetry, logger *log.Logger) *Router {
	if logger == nil {
		logger = log.New(log.Writer(), "[ROUTER] ", log.LstdFlags)
	}
	return &Router{llm: llm, telemetry: tel, logger: logger}
}

// Route never fails: provider or parse errors yield no research.
func (r *Router) Route(ctx context.Context, s State) RouterUpdate {
	r.logger.Printf("analyzing topic: %s", s.Topic)

	raw, err := r.llm.Generate(ctx, routerPrompt(s.Topic), routerSchema)
	r.telemetry.RecordProviderCall("generate", err)
	if err != nil {
		r.logger.Printf("generation failed, skipping research: %v", err)
		r.telemetry.RecordFallback(string(StageRouter))
		return RouterUpdate{SearchQueries: []string{}}
	}

	var out routerOutput
	if err := json.Unmarshal([]byte(models.ExtractJSON(raw)), &out); err != nil {
		r.logger.Printf("unparseable decision, skipping research: %v", err)
		r.telemetry.RecordFallback(string(StageRouter))
		return RouterUpdate{SearchQueries: []string{}}
	}

	u := RouterUpdate{SearchQueries: []string{}}
	if out.NeedsResearch != nil {
		u.NeedsResearch = *out.NeedsResearch
	}
	for _, q := range out.SearchQueries {
		if q = strings.TrimSpace(q); q != "" {
			u.SearchQueries = append(u.SearchQueries, q)
		}
	}
	r.logger.Printf("research needed: %t, queries: %d (%s)", u.NeedsResearch, len(u.SearchQueries), out.Reasoning)
	return u
}

func routerPrompt(topic string) string {
	return fmt.Sprintf(`You are a blog strategy expert. Analyze this topic and determine if it requires online research.

Topic: %q

Consider:
- Does this need current data, statistics, or recent events?
- Is this a technical topic that benefits from multiple sources?
- Or is this a personal/creative topic that doesn't need research?

If research IS needed, generate 3-4 specific, diverse search queries to gather comprehensive information.
If research is NOT needed, set searchQueries to an empty array.`, topic)
}
