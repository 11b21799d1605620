package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BTreeMap/SalesPipe/internal/analyst"
	"github.com/BTreeMap/SalesPipe/internal/catalog"
	"github.com/BTreeMap/SalesPipe/internal/decision"
	"github.com/BTreeMap/SalesPipe/internal/flow"
	"github.com/BTreeMap/SalesPipe/internal/models"
	"github.com/BTreeMap/SalesPipe/internal/speaker"
	"github.com/BTreeMap/SalesPipe/internal/store"
)

type stubAnalyst struct{}

func (stubAnalyst) Analyze(ctx context.Context, req analyst.Request) (models.Analysis, error) {
	a := models.ConservativeAnalysis()
	a.NewInformation = true
	return a, nil
}

type stubSpeaker struct{}

func (stubSpeaker) Respond(ctx context.Context, req speaker.Request) (string, error) {
	return "What made you start looking into this now?", nil
}

func recordedLogs(t *testing.T, turns int) []models.ThoughtLog {
	t.Helper()
	st := store.NewInMemoryStore()
	f := flow.NewSalesFlow(st, stubAnalyst{}, stubSpeaker{}, decision.New(catalog.Default()))
	resp, err := f.StartSession(context.Background(), 6)
	if err != nil {
		t.Fatalf("failed to start session: %v", err)
	}
	for i := 0; i < turns; i++ {
		if _, err := f.ProcessTurn(context.Background(), resp.SessionID, "we run a small agency"); err != nil {
			t.Fatalf("turn %d failed: %v", i+1, err)
		}
	}
	logs, err := st.ListThoughtLogs(resp.SessionID)
	if err != nil {
		t.Fatalf("failed to list thought logs: %v", err)
	}
	return logs
}

func TestReplay_Reproduces(t *testing.T) {
	logs := recordedLogs(t, 4)
	if len(logs) != 4 {
		t.Fatalf("expected 4 logs, got %d", len(logs))
	}
	if m := replay(decision.New(catalog.Default()), logs); len(m) != 0 {
		t.Errorf("expected every decision to reproduce, got %+v", m)
	}
}

func TestReplay_ReportsTamperedTurn(t *testing.T) {
	logs := recordedLogs(t, 3)
	logs[1].Decision.Action = models.ActionEnd
	m := replay(decision.New(catalog.Default()), logs)
	if len(m) != 1 || m[0].Turn != logs[1].TurnNumber {
		t.Fatalf("expected one mismatch on turn %d, got %+v", logs[1].TurnNumber, m)
	}

	var out bytes.Buffer
	report(&out, "S1", len(logs), m)
	if !strings.Contains(out.String(), "-stored +replayed") {
		t.Errorf("expected a diff report, got %q", out.String())
	}
}

func TestCatalogShow(t *testing.T) {
	cmd := newCatalogCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"show"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, phase := range []string{"CONNECTION", "OWNERSHIP", "COMMITMENT"} {
		if !strings.Contains(out.String(), phase) {
			t.Errorf("expected output to list %s", phase)
		}
	}
	if _, err := catalog.Parse(out.Bytes()); err != nil {
		t.Errorf("expected show output to parse back, got %v", err)
	}
}

func TestCatalogValidate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(good, []byte("phases:\n  CONNECTION:\n    min_turns: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte("phases:\n  CONNECTION:\n    no_such_field: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := newCatalogCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"validate", "--file", good})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected the good file to validate, got %v", err)
	}
	if !strings.Contains(out.String(), "ok") {
		t.Errorf("expected ok output, got %q", out.String())
	}

	cmd = newCatalogCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"validate", "--file", bad})
	if err := cmd.Execute(); err == nil {
		t.Error("expected the unknown field to be rejected")
	}
}
