package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/mohammad-safakhou/lumina/internal/agent/telemetry"
	"github.com/mohammad-safakhou/lumina/provider/models"
	"github.com/mohammad-safakhou/lumina/utils"
)

const plannerContextLimit = 3000

type plannerOutput struct {
	Sections []Section `json:"sections" jsonschema:"description=Structured blog outline with 4-6 sections"`
}

var plannerSchema = models.MustSchemaFor("blog_outline", &plannerOutput{})

// Planner produces the ordered outline the writer expands.
type Planner struct {
	llm       LLMProvider
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// NewPlanner creates a new planner instance
func NewPlanner(llm LLMProvider, tel *telemetry.Telemetry, logger *log.Logger) *Planner {
	if logger == nil {
		logger = log.New(log.Writer(), "[PLANNER] ", log.LstdFlags)
	}
	return &Planner{llm: llm, telemetry: tel, logger: logger}
}

// FallbackPlan is used whenever the planner cannot produce an outline.
func FallbackPlan(topic string) []Section {
	return []Section{
		{Title: "Introduction", Instructions: "Introduce " + topic},
		{Title: "Main Content", Instructions: "Discuss " + topic + " in detail"},
		{Title: "Conclusion", Instructions: "Summarize key points about " + topic},
	}
}

// Plan always returns a non-empty outline.
func (p *Planner) Plan(ctx context.Context, s State) PlanUpdate {
	raw, err := p.llm.Generate(ctx, plannerPrompt(s.Topic, s.ResearchContext), plannerSchema)
	p.telemetry.RecordProviderCall("generate", err)
	if err != nil {
		p.logger.Printf("generation failed, using fallback outline: %v", err)
		return p.fallback(s.Topic)
	}

	var out plannerOutput
	if err := json.Unmarshal([]byte(models.ExtractJSON(raw)), &out); err != nil {
		p.logger.Printf("unparseable outline, using fallback: %v", err)
		return p.fallback(s.Topic)
	}

	sections := make([]Section, 0, len(out.Sections))
	for _, sec := range out.Sections {
		sec.Title = strings.TrimSpace(sec.Title)
		if sec.Title == "" {
			continue
		}
		sections = append(sections, sec)
	}
	if len(sections) == 0 {
		p.logger.Printf("empty outline, using fallback")
		return p.fallback(s.Topic)
	}

	p.logger.Printf("created %d sections", len(sections))
	for i, sec := range sections {
		p.logger.Printf("  %d. %s", i+1, sec.Title)
	}
	return PlanUpdate{BlogPlan: sections}
}

func (p *Planner) fallback(topic string) PlanUpdate {
	p.telemetry.RecordFallback(string(StagePlanner))
	return PlanUpdate{BlogPlan: FallbackPlan(topic)}
}

func plannerPrompt(topic, research string) string {
	grounding := "No specific research available - use general knowledge."
	if research != "" {
		grounding = "Research Context:\n" + utils.Prefix(research, plannerContextLimit)
	}
	return fmt.Sprintf(`You are an expert blog editor. Create a comprehensive, structured outline for a blog post.

Topic: %q

%s

Create an outline with 4-6 well-structured sections. Each section should have:
- A compelling title
- Detailed instructions on what to cover

Make it engaging, informative, and reader-friendly.`, topic, grounding)
}
