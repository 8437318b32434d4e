package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohammad-safakhou/lumina/internal/agent/telemetry"
)

var orchestratorTracer trace.Tracer = otel.Tracer("lumina/internal/agent/orchestrator")

// ErrStreamAbandoned is reported by StreamResult.Err when the consumer closed
// the stream or stopped reading before the terminal event.
var ErrStreamAbandoned = errors.New("stream consumer gone")

// defaultConsumerTimeout bounds how long one event waits for a reader.
const defaultConsumerTimeout = 30 * time.Second

type step struct {
	run  func(ctx context.Context, s *State) error
	next func(s *State) Stage
}

// Orchestrator runs router, researcher, planner and writer over one State per call.
// It holds no per-run state and is safe for concurrent use.
type Orchestrator struct {
	router     *Router
	researcher *Researcher
	planner    *Planner
	writer     *Writer
	telemetry  *telemetry.Telemetry
	logger     *log.Logger

	// consumerTimeout is how long a streamed event waits before the
	// consumer is considered gone.
	consumerTimeout time.Duration

	steps map[Stage]step
}

// NewOrchestrator wires the stages around the given providers. search may be nil.
func NewOrchestrator(llm LLMProvider, search Searcher, tel *telemetry.Telemetry, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags)
	}
	sub := func(prefix string) *log.Logger {
		return log.New(logger.Writer(), prefix, logger.Flags())
	}
	o := &Orchestrator{
		router:     NewRouter(llm, tel, sub("[ROUTER] ")),
		researcher: NewResearcher(search, tel, sub("[RESEARCHER] ")),
		planner:    NewPlanner(llm, tel, sub("[PLANNER] ")),
		writer:     NewWriter(llm, tel, sub("[WRITER] ")),
		telemetry:  tel,
		logger:     logger,

		consumerTimeout: defaultConsumerTimeout,
	}
	o.steps = map[Stage]step{
		StageRouter: {
			run: func(ctx context.Context, s *State) error { return s.applyRouter(o.router.Route(ctx, *s)) },
			next: func(s *State) Stage {
				if s.NeedsResearch {
					return StageResearcher
				}
				return StagePlanner
			},
		},
		StageResearcher: {
			run:  func(ctx context.Context, s *State) error { return s.applyResearch(o.researcher.Research(ctx, *s)) },
			next: func(*State) Stage { return StagePlanner },
		},
		StagePlanner: {
			run:  func(ctx context.Context, s *State) error { return s.applyPlan(o.planner.Plan(ctx, *s)) },
			next: func(*State) Stage { return StageWriter },
		},
		StageWriter: {
			run:  func(ctx context.Context, s *State) error { return s.applyWrite(o.writer.Write(ctx, *s)) },
			next: func(*State) Stage { return StageDone },
		},
	}
	return o
}

// WithResearchHits sets how many results the researcher requests per query.
func (o *Orchestrator) WithResearchHits(n int) *Orchestrator {
	if n > 0 {
		o.researcher.maxResults = n
	}
	return o
}

// Run executes the pipeline and returns the final content, which may be empty.
func (o *Orchestrator) Run(ctx context.Context, topic string) (string, error) {
	st, err := o.RunState(ctx, topic)
	if err != nil {
		return "", err
	}
	return st.FinalContent, nil
}

// RunState is Run returning the whole final state.
func (o *Orchestrator) RunState(ctx context.Context, topic string) (State, error) {
	start := time.Now()
	st, err := o.drive(ctx, topic, func(ProgressEvent) bool { return true })
	o.telemetry.RecordRun("blocking", err == nil, time.Since(start))
	if err != nil {
		return *st, fmt.Errorf("agentic blog generation failed: %w", err)
	}
	return *st, nil
}

// StreamResult is the handle of a streamed run.
type StreamResult struct {
	events  chan ProgressEvent
	done    chan struct{}
	abandon chan struct{}
	once    sync.Once
	cancel  context.CancelFunc
	err     error
}

// Events yields progress in order and is closed after the terminal event.
func (r *StreamResult) Events() <-chan ProgressEvent { return r.events }

// Err blocks until the run has finished and returns the failure that ended it,
// if any. An empty-output run is reported through an error event only.
func (r *StreamResult) Err() error {
	<-r.done
	return r.err
}

// Close abandons the stream. The in-flight provider call is cancelled and no
// further events are sent. Safe to call more than once.
func (r *StreamResult) Close() {
	r.once.Do(func() {
		close(r.abandon)
		r.cancel()
	})
}

// Stream runs the pipeline in the background and reports progress on an
// unbuffered channel. ctx bounds provider calls only: when it ends mid-run the
// stages fall back and a reader still gets exactly one result or error event.
// A consumer may call Close or simply stop reading; in the latter case the
// producer gives up after consumerTimeout.
func (o *Orchestrator) Stream(ctx context.Context, topic string) *StreamResult {
	runCtx, cancel := context.WithCancel(ctx)
	res := &StreamResult{
		events:  make(chan ProgressEvent),
		done:    make(chan struct{}),
		abandon: make(chan struct{}),
		cancel:  cancel,
	}
	send := func(ev ProgressEvent) bool {
		timer := time.NewTimer(o.consumerTimeout)
		defer timer.Stop()
		select {
		case res.events <- ev:
			return true
		case <-res.abandon:
			return false
		case <-timer.C:
			return false
		}
	}

	go func() {
		defer close(res.done)
		defer close(res.events)
		defer cancel()

		start := time.Now()
		st, err := o.drive(runCtx, topic, send)
		o.telemetry.RecordRun("stream", err == nil && st.FinalContent != "", time.Since(start))
		switch {
		case errors.Is(err, ErrStreamAbandoned):
			o.logger.Printf("stream for %q abandoned by consumer", topic)
			res.err = err
		case err != nil:
			res.err = err
			send(ProgressEvent{Type: EventError, Message: "Error: " + err.Error()})
		case st.FinalContent != "":
			send(ProgressEvent{Type: EventResult, Content: st.FinalContent})
		default:
			send(ProgressEvent{Type: EventError, Message: "Failed to generate content (empty output)"})
		}
	}()
	return res
}

// drive is the single stage driver behind Run and Stream. emit returning
// false means nobody is listening any more.
func (o *Orchestrator) drive(ctx context.Context, topic string, emit func(ProgressEvent) bool) (*State, error) {
	runID := uuid.NewString()
	ctx, span := orchestratorTracer.Start(ctx, "draft.run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("draft.topic", topic),
		))
	defer span.End()

	st := NewState(topic)
	o.logger.Printf("run %s started for topic %q", runID, topic)
	if !emit(logEvent("Initializing Agentic Workflow for: %q", topic)) {
		return st, ErrStreamAbandoned
	}

	current := StageRouter
	for current != StageDone {
		s, ok := o.steps[current]
		if !ok {
			err := &PipelineError{Stage: current, Err: fmt.Errorf("no handler for stage")}
			o.fail(span, runID, err)
			return st, err
		}

		stageStart := time.Now()
		stageCtx, stageSpan := orchestratorTracer.Start(ctx, "draft."+string(current))
		err := runStage(stageCtx, s, st)
		if err != nil {
			stageSpan.RecordError(err)
			stageSpan.SetStatus(codes.Error, err.Error())
		}
		stageSpan.End()
		o.telemetry.RecordStage(string(current), time.Since(stageStart))

		if err != nil {
			perr := &PipelineError{Stage: current, Err: err}
			o.fail(span, runID, perr)
			return st, perr
		}

		for _, ev := range stageEvents(current, st) {
			if !emit(ev) {
				return st, ErrStreamAbandoned
			}
		}
		current = s.next(st)
	}

	span.SetAttributes(
		attribute.Bool("draft.research", st.NeedsResearch),
		attribute.Int("draft.sections", len(st.BlogPlan)),
		attribute.Int("draft.length", len(st.FinalContent)),
	)
	o.logger.Printf("run %s complete: research=%t sections=%d length=%d", runID, st.NeedsResearch, len(st.BlogPlan), len(st.FinalContent))
	return st, nil
}

func (o *Orchestrator) fail(span trace.Span, runID string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	o.logger.Printf("run %s failed: %v", runID, err)
}

func runStage(ctx context.Context, s step, st *State) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return s.run(ctx, st)
}
