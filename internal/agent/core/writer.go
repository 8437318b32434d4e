package core

import (
	"context"
	"fmt"
	"html"
	"log"
	"strings"

	"github.com/mohammad-safakhou/lumina/internal/agent/telemetry"
	"github.com/mohammad-safakhou/lumina/utils"
)

const (
	writerContextLimit = 2000
	sectionSeparator   = "\n\n"
)

// Writer expands each outline section into HTML.
type Writer struct {
	llm       LLMProvider
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

func NewWriter(llm LLMProvider, tel *telemetry.Telemetry, logger *log.Logger) *Writer {
	if logger == nil {
		logger = log.New(log.Writer(), "[WRITER] ", log.LstdFlags)
	}
	return &Writer{llm: llm, telemetry: tel, logger: logger}
}

// FailedSection is the placeholder block for a section that could not be generated.
func FailedSection(title string) string {
	return "<h2>" + html.EscapeString(title) + "</h2>\n<p>Content generation failed for this section.</p>"
}

// Write generates sections one at a time in plan order. A failed section is
// replaced by its placeholder and the rest continue.
func (w *Writer) Write(ctx context.Context, s State) WriteUpdate {
	blocks := make([]string, 0, len(s.BlogPlan))
	for i, sec := range s.BlogPlan {
		w.logger.Printf("writing: %s (%d/%d)", sec.Title, i+1, len(s.BlogPlan))
		out, err := w.llm.Generate(ctx, writerPrompt(s.Topic, sec, s.ResearchContext), nil)
		w.telemetry.RecordProviderCall("generate", err)
		if err != nil {
			w.logger.Printf("section %q failed: %v", sec.Title, err)
			w.telemetry.RecordFallback(string(StageWriter))
			blocks = append(blocks, FailedSection(sec.Title))
			continue
		}
		blocks = append(blocks, out)
	}

	content := strings.Join(blocks, sectionSeparator)
	w.logger.Printf("generated %d characters", len(content))
	return WriteUpdate{FinalContent: content}
}

func writerPrompt(topic string, sec Section, research string) string {
	grounding := ""
	if research != "" {
		grounding = "Research Context:\n" + utils.Prefix(research, writerContextLimit)
	}
	return fmt.Sprintf(`You are a professional blog writer. Write engaging, well-formatted content for this section.

Blog Topic: %q

Section: %s
Instructions: %s

%s

Write 2-4 paragraphs in HTML format. Use proper tags: <h2>, <p>, <ul>, <li>, <strong>, <em>.
Be informative, engaging, and professional. Include specific details and examples.`, topic, sec.Title, sec.Instructions, grounding)
}
