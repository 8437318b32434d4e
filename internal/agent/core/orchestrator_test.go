package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammad-safakhou/lumina/config"
	"github.com/mohammad-safakhou/lumina/internal/agent/telemetry"
	"github.com/mohammad-safakhou/lumina/provider/models"
)

func newTestOrchestrator(llm LLMProvider, search Searcher) *Orchestrator {
	return NewOrchestrator(llm, search, nil, quietLogger())
}

func collect(t *testing.T, res *StreamResult) []ProgressEvent {
	t.Helper()
	var events []ProgressEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-res.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("stream did not finish, got %d events", len(events))
		}
	}
}

func TestScenarioNoResearch(t *testing.T) {
	llm := &fakeLLM{}
	search := &fakeSearch{}
	o := newTestOrchestrator(llm, search)

	st, err := o.RunState(context.Background(), "The history of the Eiffel Tower")
	if err != nil {
		t.Fatalf("RunState: %v", err)
	}
	if len(search.queries) != 0 {
		t.Fatalf("researcher must not search, got %v", search.queries)
	}
	if st.NeedsResearch || st.ResearchContext != "" || len(st.SearchQueries) != 0 {
		t.Fatalf("unexpected research state %+v", st)
	}
	if llm.plannerCalls != 1 || len(llm.writerCalls) != 2 {
		t.Fatalf("planner/writer not invoked normally: planner=%d writer=%v", llm.plannerCalls, llm.writerCalls)
	}
	want := "<h2>One</h2><p>body</p>\n\n<h2>Two</h2><p>body</p>"
	if st.FinalContent != want {
		t.Fatalf("unexpected content:\n%s", cmp.Diff(want, st.FinalContent))
	}
	for _, stage := range []Stage{StageRouter, StagePlanner, StageWriter} {
		if !st.Written(stage) {
			t.Fatalf("expected %s output to be written", stage)
		}
	}
	if st.Written(StageResearcher) {
		t.Fatalf("researcher should have been skipped")
	}
}

func TestScenarioResearch(t *testing.T) {
	llm := &fakeLLM{router: func() (string, error) {
		return `{"needsResearch":true,"searchQueries":["AI chip benchmarks 2024","H100 vs B200"],"reasoning":"fresh data"}`, nil
	}}
	search := &fakeSearch{}
	o := newTestOrchestrator(llm, search)

	st, err := o.RunState(context.Background(), "Latest AI chip benchmarks 2024")
	if err != nil {
		t.Fatalf("RunState: %v", err)
	}
	if diff := cmp.Diff([]string{"AI chip benchmarks 2024", "H100 vs B200"}, search.queries); diff != "" {
		t.Fatalf("queries mismatch:\n%s", diff)
	}
	ctx := st.ResearchContext
	if n := strings.Count(ctx, "### Research:"); n != 2 {
		t.Fatalf("expected 2 research blocks, got %d", n)
	}
	if n := strings.Count(ctx, "**Source:**"); n != 4 {
		t.Fatalf("expected 4 source blocks, got %d", n)
	}
	if n := strings.Count(ctx, researchSeparator); n != 5 {
		t.Fatalf("expected 5 separators, got %d", n)
	}
	if strings.Index(ctx, "Research: AI chip") > strings.Index(ctx, "Research: H100") {
		t.Fatalf("research blocks out of query order")
	}
	for _, p := range llm.prompts[1:] {
		if !strings.Contains(p, "Research Context:") {
			t.Fatalf("planner/writer prompts should carry research context")
		}
	}
}

func TestScenarioSearchFailure(t *testing.T) {
	llm := &fakeLLM{router: func() (string, error) {
		return `{"needsResearch":true,"searchQueries":["first","second","third"]}`, nil
	}}
	search := &fakeSearch{failOn: 2}
	st, err := newTestOrchestrator(llm, search).RunState(context.Background(), "topic")
	if err != nil {
		t.Fatalf("RunState: %v", err)
	}
	if st.ResearchContext != ResearchUnavailable {
		t.Fatalf("expected sentinel research context, got %q", st.ResearchContext)
	}
	if st.FinalContent == "" {
		t.Fatalf("pipeline should still produce content")
	}
}

func TestRouterFailureStillWrites(t *testing.T) {
	llm := &fakeLLM{router: failing}
	st, err := newTestOrchestrator(llm, &fakeSearch{}).RunState(context.Background(), "topic")
	if err != nil {
		t.Fatalf("RunState: %v", err)
	}
	if st.NeedsResearch || len(st.SearchQueries) != 0 {
		t.Fatalf("router fallback not applied: %+v", st)
	}
	if st.FinalContent == "" {
		t.Fatalf("expected content after router failure")
	}
}

func TestPlannerFailureUsesFallbackPlan(t *testing.T) {
	llm := &fakeLLM{planner: failing}
	st, err := newTestOrchestrator(llm, nil).RunState(context.Background(), "Go")
	if err != nil {
		t.Fatalf("RunState: %v", err)
	}
	if diff := cmp.Diff(FallbackPlan("Go"), st.BlogPlan); diff != "" {
		t.Fatalf("plan mismatch:\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Introduction", "Main Content", "Conclusion"}, llm.writerCalls); diff != "" {
		t.Fatalf("writer order mismatch:\n%s", diff)
	}
}

func TestStreamEventOrder(t *testing.T) {
	llm := &fakeLLM{router: func() (string, error) {
		return `{"needsResearch":true,"searchQueries":["a","b"]}`, nil
	}}
	res := newTestOrchestrator(llm, &fakeSearch{}).Stream(context.Background(), "chips")
	events := collect(t, res)
	if err := res.Err(); err != nil {
		t.Fatalf("Err: %v", err)
	}

	var messages []string
	for _, ev := range events[:len(events)-1] {
		if ev.Type != EventLog {
			t.Fatalf("non-terminal event of type %s", ev.Type)
		}
		messages = append(messages, ev.Message)
	}
	want := []string{
		`Initializing Agentic Workflow for: "chips"`,
		"[ROUTER] Analyzed topic. Research needed: YES",
		"[ROUTER] Generated search queries: a, b",
		"[RESEARCHER] Gathered research data.",
		"[PLANNER] Created valid blog outline with 2 sections.",
		"  - Section 1: One",
		"  - Section 2: Two",
	}
	if diff := cmp.Diff(want, messages[:len(want)]); diff != "" {
		t.Fatalf("log order mismatch (-want +got):\n%s", diff)
	}
	if len(messages) != len(want)+1 || !strings.HasPrefix(messages[len(want)], "[WRITER] Draft generation complete. Length: ") {
		t.Fatalf("expected writer log last, got %v", messages)
	}
	last := events[len(events)-1]
	if last.Type != EventResult || last.Content == "" {
		t.Fatalf("expected result terminal event, got %+v", last)
	}
}

func TestStreamSkippedResearchLogs(t *testing.T) {
	res := newTestOrchestrator(&fakeLLM{}, &fakeSearch{}).Stream(context.Background(), "poem")
	events := collect(t, res)
	for _, ev := range events {
		if strings.HasPrefix(ev.Message, "[RESEARCHER]") || strings.HasPrefix(ev.Message, "[ROUTER] Generated") {
			t.Fatalf("unexpected research log %q", ev.Message)
		}
	}
	if events[1].Message != "[ROUTER] Analyzed topic. Research needed: NO" {
		t.Fatalf("unexpected router log %q", events[1].Message)
	}
}

func TestStreamMatchesRun(t *testing.T) {
	newLLM := func() *fakeLLM {
		return &fakeLLM{
			router: func() (string, error) { return `{"needsResearch":true,"searchQueries":["q"]}`, nil },
			writer: func(section string) (string, error) {
				if section == "Two" {
					return "", errProvider
				}
				return "<p>" + section + "</p>", nil
			},
		}
	}

	blocking, err := newTestOrchestrator(newLLM(), &fakeSearch{}).Run(context.Background(), "same topic")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	events := collect(t, newTestOrchestrator(newLLM(), &fakeSearch{}).Stream(context.Background(), "same topic"))
	last := events[len(events)-1]
	if last.Type != EventResult {
		t.Fatalf("expected result event, got %+v", last)
	}
	if diff := cmp.Diff(blocking, last.Content); diff != "" {
		t.Fatalf("stream and blocking output differ:\n%s", diff)
	}
}

func TestStreamEmptyOutput(t *testing.T) {
	llm := &fakeLLM{
		planner: func() (string, error) { return `{"sections":[{"title":"Only","instructions":"x"}]}`, nil },
		writer:  func(string) (string, error) { return "", nil },
	}
	o := newTestOrchestrator(llm, nil)

	content, err := o.Run(context.Background(), "t")
	if err != nil || content != "" {
		t.Fatalf("expected empty content and no error, got %q %v", content, err)
	}

	res := o.Stream(context.Background(), "t")
	events := collect(t, res)
	last := events[len(events)-1]
	if last.Type != EventError || last.Message != "Failed to generate content (empty output)" {
		t.Fatalf("unexpected terminal event %+v", last)
	}
	for _, ev := range events {
		if strings.HasPrefix(ev.Message, "[WRITER]") {
			t.Fatalf("writer log must be omitted for empty output")
		}
	}
	if err := res.Err(); err != nil {
		t.Fatalf("empty output is not a run failure, got %v", err)
	}
}

type panicLLM struct{}

func (panicLLM) Generate(context.Context, string, *models.Schema) (string, error) {
	panic("boom")
}

func TestRunFailsOnPanic(t *testing.T) {
	_, err := newTestOrchestrator(panicLLM{}, nil).Run(context.Background(), "t")
	var perr *PipelineError
	if !errors.As(err, &perr) || perr.Stage != StageRouter {
		t.Fatalf("expected router pipeline error, got %v", err)
	}
	var pe *PanicError
	if !errors.As(err, &pe) || pe.Value != "boom" {
		t.Fatalf("expected recovered panic, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "agentic blog generation failed: ") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestStreamSurfacesFailure(t *testing.T) {
	res := newTestOrchestrator(panicLLM{}, nil).Stream(context.Background(), "t")
	events := collect(t, res)
	if len(events) != 2 {
		t.Fatalf("expected init and error events, got %+v", events)
	}
	if events[1].Type != EventError || !strings.Contains(events[1].Message, "boom") {
		t.Fatalf("unexpected terminal event %+v", events[1])
	}
	var perr *PipelineError
	if !errors.As(res.Err(), &perr) {
		t.Fatalf("expected Err to return the pipeline error, got %v", res.Err())
	}
}

func TestStreamClosedByConsumer(t *testing.T) {
	res := newTestOrchestrator(&fakeLLM{}, nil).Stream(context.Background(), "t")
	<-res.Events()
	res.Close()
	res.Close()

	select {
	case <-res.done:
	case <-time.After(5 * time.Second):
		t.Fatalf("producer did not exit after Close")
	}
	if !errors.Is(res.Err(), ErrStreamAbandoned) {
		t.Fatalf("expected ErrStreamAbandoned, got %v", res.Err())
	}
}

func TestStreamConsumerStopsReading(t *testing.T) {
	o := newTestOrchestrator(&fakeLLM{}, nil)
	o.consumerTimeout = 20 * time.Millisecond
	res := o.Stream(context.Background(), "t")
	<-res.Events()

	select {
	case <-res.done:
	case <-time.After(5 * time.Second):
		t.Fatalf("producer leaked after the consumer stopped reading")
	}
	if !errors.Is(res.Err(), ErrStreamAbandoned) {
		t.Fatalf("expected ErrStreamAbandoned, got %v", res.Err())
	}
}

func TestStreamDeadlineMidRunStillTerminates(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	llm := &fakeLLM{}
	blocking := &ctxLLM{inner: llm}
	res := newTestOrchestrator(blocking, nil).Stream(ctx, "slow")

	events := collect(t, res)
	if len(events) == 0 {
		t.Fatalf("no events")
	}
	terminal := 0
	for _, ev := range events {
		if ev.Terminal() {
			terminal++
		}
	}
	last := events[len(events)-1]
	if terminal != 1 || !last.Terminal() {
		t.Fatalf("expected exactly one terminal event at the end, got %+v", events)
	}
	if last.Type != EventResult || !strings.Contains(last.Content, FailedSection("One")) {
		t.Fatalf("expected placeholder sections after the deadline, got %+v", last)
	}
	if err := res.Err(); err != nil {
		t.Fatalf("deadline with fallbacks is not a run failure, got %v", err)
	}

	blockingRun := &ctxLLM{inner: &fakeLLM{}}
	runCtx, runCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer runCancel()
	content, err := newTestOrchestrator(blockingRun, nil).Run(runCtx, "slow")
	if err != nil || content != last.Content {
		t.Fatalf("blocking run should match the streamed result, got %q %v", content, err)
	}
}

// ctxLLM answers router and planner calls and blocks writer calls until ctx ends.
type ctxLLM struct {
	inner *fakeLLM
}

func (c *ctxLLM) Generate(ctx context.Context, prompt string, schema *models.Schema) (string, error) {
	if strings.HasPrefix(prompt, "You are a professional blog writer") {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return c.inner.Generate(ctx, prompt, schema)
}

func TestTelemetryRecordsRuns(t *testing.T) {
	tel := telemetry.NewTelemetry(config.TelemetryConfig{}, prometheus.NewRegistry())
	o := NewOrchestrator(&fakeLLM{planner: failing}, nil, tel, quietLogger())
	if _, err := o.Run(context.Background(), "t"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	snap := tel.GetMetrics()
	if snap.SuccessfulRuns != 1 || snap.Fallbacks["planner"] != 1 {
		t.Fatalf("unexpected telemetry %+v", snap)
	}
	if snap.StageExecutions["router"] != 1 || snap.StageExecutions["researcher"] != 0 || snap.StageExecutions["writer"] != 1 {
		t.Fatalf("unexpected stage executions %+v", snap.StageExecutions)
	}
}
