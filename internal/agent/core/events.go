package core

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// EventType distinguishes progress events.
type EventType string

const (
	EventLog    EventType = "log"
	EventResult EventType = "result"
	EventError  EventType = "error"
)

// ProgressEvent is one item of a streamed run.
type ProgressEvent struct {
	Type    EventType `json:"type"`
	Message string    `json:"message,omitempty"`
	Content string    `json:"content,omitempty"`
}

// Terminal reports whether the event ends a stream.
func (e ProgressEvent) Terminal() bool {
	return e.Type == EventResult || e.Type == EventError
}

func logEvent(format string, args ...any) ProgressEvent {
	return ProgressEvent{Type: EventLog, Message: fmt.Sprintf(format, args...)}
}

// stageEvents renders the progress lines for a completed stage.
func stageEvents(stage Stage, s *State) []ProgressEvent {
	switch stage {
	case StageRouter:
		answer := "NO"
		if s.NeedsResearch {
			answer = "YES"
		}
		out := []ProgressEvent{logEvent("[ROUTER] Analyzed topic. Research needed: %s", answer)}
		if s.NeedsResearch {
			out = append(out, logEvent("[ROUTER] Generated search queries: %s", strings.Join(s.SearchQueries, ", ")))
		}
		return out
	case StageResearcher:
		if s.ResearchContext != "" {
			return []ProgressEvent{logEvent("[RESEARCHER] Gathered research data.")}
		}
		return []ProgressEvent{logEvent("[RESEARCHER] Skipped research phase.")}
	case StagePlanner:
		out := []ProgressEvent{logEvent("[PLANNER] Created valid blog outline with %d sections.", len(s.BlogPlan))}
		for i, sec := range s.BlogPlan {
			out = append(out, logEvent("  - Section %d: %s", i+1, sec.Title))
		}
		return out
	case StageWriter:
		if s.FinalContent == "" {
			return nil
		}
		return []ProgressEvent{logEvent("[WRITER] Draft generation complete. Length: %d chars.", utf8.RuneCountInString(s.FinalContent))}
	}
	return nil
}
