package core

import "fmt"

type field uint8

const (
	fieldRouter field = 1 << iota
	fieldResearch
	fieldPlan
	fieldContent
)

func (f field) String() string {
	switch f {
	case fieldRouter:
		return "needsResearch/searchQueries"
	case fieldResearch:
		return "researchContext"
	case fieldPlan:
		return "blogPlan"
	case fieldContent:
		return "finalContent"
	}
	return "unknown"
}

// State is the record threaded through one pipeline run. Every field after
// Topic is written once, by the stage that owns it.
type State struct {
	Topic           string    `json:"topic"`
	NeedsResearch   bool      `json:"needsResearch"`
	SearchQueries   []string  `json:"searchQueries"`
	ResearchContext string    `json:"researchContext"`
	BlogPlan        []Section `json:"blogPlan"`
	FinalContent    string    `json:"finalContent"`

	written field
}

// NewState returns a state with every output field at its zero value.
func NewState(topic string) *State {
	return &State{Topic: topic, SearchQueries: []string{}, BlogPlan: []Section{}}
}

// Written reports whether the router, researcher, planner and writer outputs were set.
func (s *State) Written(stage Stage) bool {
	switch stage {
	case StageRouter:
		return s.written&fieldRouter != 0
	case StageResearcher:
		return s.written&fieldResearch != 0
	case StagePlanner:
		return s.written&fieldPlan != 0
	case StageWriter:
		return s.written&fieldContent != 0
	}
	return false
}

// RouterUpdate is the router's contribution to the state.
type RouterUpdate struct {
	NeedsResearch bool
	SearchQueries []string
}

// ResearchUpdate is the researcher's contribution to the state.
type ResearchUpdate struct {
	ResearchContext string
}

// PlanUpdate is the planner's contribution to the state.
type PlanUpdate struct {
	BlogPlan []Section
}

// WriteUpdate is the writer's contribution to the state.
type WriteUpdate struct {
	FinalContent string
}

// ErrFieldRewritten is wrapped when a stage output is merged twice.
type ErrFieldRewritten struct {
	Field string
}

func (e *ErrFieldRewritten) Error() string {
	return fmt.Sprintf("state field %s already written", e.Field)
}

func (s *State) claim(f field) error {
	if s.written&f != 0 {
		return &ErrFieldRewritten{Field: f.String()}
	}
	s.written |= f
	return nil
}

func (s *State) applyRouter(u RouterUpdate) error {
	if err := s.claim(fieldRouter); err != nil {
		return err
	}
	s.NeedsResearch = u.NeedsResearch
	s.SearchQueries = []string{}
	if u.NeedsResearch {
		s.SearchQueries = append(s.SearchQueries, u.SearchQueries...)
	}
	return nil
}

func (s *State) applyResearch(u ResearchUpdate) error {
	if err := s.claim(fieldResearch); err != nil {
		return err
	}
	s.ResearchContext = u.ResearchContext
	return nil
}

func (s *State) applyPlan(u PlanUpdate) error {
	if err := s.claim(fieldPlan); err != nil {
		return err
	}
	s.BlogPlan = append([]Section{}, u.BlogPlan...)
	return nil
}

func (s *State) applyWrite(u WriteUpdate) error {
	if err := s.claim(fieldContent); err != nil {
		return err
	}
	s.FinalContent = u.FinalContent
	return nil
}
