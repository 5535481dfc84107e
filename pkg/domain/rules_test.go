package domain

import (
	"context"
	"errors"
	"testing"
)

type staticRule struct {
	name string
	res  Result
	err  error
}

func (r staticRule) Name() string { return r.name }

func (r staticRule) Evaluate(context.Context, RuleView, []Change) (Result, error) {
	return r.res, r.err
}

func TestRulesEngineAggregates(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(staticRule{name: "warn", res: Result{Violations: []Violation{{Rule: "warn", Severity: SeverityWarn}}}})
	engine.Register(staticRule{name: "block", res: Result{Violations: []Violation{{Rule: "block", Severity: SeverityBlock}}}})

	res, err := engine.Evaluate(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 2 {
		t.Fatalf("expected 2 violations, got %d", len(res.Violations))
	}
	if !res.HasBlocking() {
		t.Fatalf("expected blocking result")
	}
}

func TestRulesEnginePropagatesError(t *testing.T) {
	boom := errors.New("boom")
	engine := NewRulesEngine()
	engine.Register(staticRule{name: "bad", err: boom})
	if _, err := engine.Evaluate(context.Background(), nil, nil); !errors.Is(err, boom) {
		t.Fatalf("expected rule error, got %v", err)
	}
}
