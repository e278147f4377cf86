package ui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestModelCompletesOnActionMessage(t *testing.T) {
	m := model{title: "seed stats", started: time.Now()}
	next, cmd := m.Update(actionMsg{details: []string{"products=8"}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	done := next.(model)
	if !done.done || done.err != nil {
		t.Fatalf("unexpected model state: %+v", done)
	}
	view := done.View()
	if !strings.Contains(view, "OK") || !strings.Contains(view, "products=8") {
		t.Fatalf("unexpected view: %q", view)
	}
}

func TestModelRendersFailure(t *testing.T) {
	m := model{title: "migrate up", started: time.Now()}
	next, _ := m.Update(actionMsg{err: errors.New("db ping: refused")})
	view := next.(model).View()
	if !strings.Contains(view, "FAILED") || !strings.Contains(view, "db ping: refused") {
		t.Fatalf("unexpected view: %q", view)
	}
}

func TestModelTickStopsAfterDone(t *testing.T) {
	m := model{title: "loadgen race", started: time.Now(), done: true}
	if _, cmd := m.Update(tickMsg(time.Now())); cmd != nil {
		t.Fatal("expected no further ticks once done")
	}
}

func TestRunCIModeReturnsActionResult(t *testing.T) {
	details, err := Run(Options{Tool: "seed", Command: "dry-run", CI: true, Timeout: time.Second}, func(ctx context.Context) ([]string, error) {
		if _, ok := ctx.Deadline(); !ok {
			t.Fatal("expected deadline on action context")
		}
		return []string{"would insert 8 products"}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(details) != 1 {
		t.Fatalf("unexpected details: %+v", details)
	}
}
