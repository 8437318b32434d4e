package main

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/lumina/config"
)

func TestNewSearcherWithoutKey(t *testing.T) {
	var buf bytes.Buffer
	s, err := newSearcher(config.WebSearchConfig{Provider: "tavily"}, nil, log.New(&buf, "", 0))
	if err != nil {
		t.Fatalf("newSearcher: %v", err)
	}
	if s != nil {
		t.Fatalf("expected nil searcher without api key, got %T", s)
	}
	if !strings.Contains(buf.String(), "without research") {
		t.Fatalf("expected warning, got %q", buf.String())
	}
}

func TestNewSearcherUnsupported(t *testing.T) {
	if _, err := newSearcher(config.WebSearchConfig{Provider: "bing", TavilyAPIKey: "k"}, nil, log.New(&bytes.Buffer{}, "", 0)); err == nil {
		t.Fatalf("expected unsupported provider error")
	}
}

func TestNewSchedulerWithoutRedis(t *testing.T) {
	cfg := &config.Config{Scheduler: config.SchedulerConfig{}.Normalize()}
	sched, err := newScheduler(cfg, nil, nil)
	if err != nil {
		t.Fatalf("newScheduler: %v", err)
	}
	if sched.Lock != nil {
		t.Fatalf("expected unguarded scheduler without redis")
	}
}

func TestRootCommands(t *testing.T) {
	for _, c := range []interface{ Name() string }{serveCMD(), migrateCMD(), fixSummariesCMD(), publishDueCMD()} {
		if c.Name() == "" {
			t.Fatalf("command without a name")
		}
	}
	if f := serveCMD().PersistentFlags().Lookup("config"); f == nil || f.Shorthand != "c" {
		t.Fatalf("serve must accept -c/--config")
	}
}
