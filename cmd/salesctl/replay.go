package main

import (
	"fmt"
	"io"

	"github.com/BTreeMap/SalesPipe/internal/decision"
	"github.com/BTreeMap/SalesPipe/internal/models"
	"github.com/BTreeMap/SalesPipe/internal/store"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/spf13/cobra"
)

// Mismatch is a stored turn whose decision no longer reproduces.
type Mismatch struct {
	Turn int
	Diff string
}

func newReplayCmd() *cobra.Command {
	var dsn, sessionID, catalogFile string
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Recompute every stored decision of a session and report differences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(dsn)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			c, err := loadCatalog(catalogFile)
			if err != nil {
				return err
			}
			logs, err := st.ListThoughtLogs(sessionID)
			if err != nil {
				return fmt.Errorf("load thought logs: %w", err)
			}
			if len(logs) == 0 {
				return fmt.Errorf("no thought logs for session %s", sessionID)
			}
			mismatches := replay(decision.New(c), logs)
			report(cmd.OutOrStdout(), sessionID, len(logs), mismatches)
			if len(mismatches) > 0 {
				return fmt.Errorf("%d of %d decisions differ", len(mismatches), len(logs))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "SQLite path or PostgreSQL URL of the SalesPipe database")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id to replay")
	cmd.Flags().StringVar(&catalogFile, "catalog", "", "YAML catalog override the session ran with")
	_ = cmd.MarkFlagRequired("dsn")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

// replay re-derives each turn's decision from the inputs recorded with it.
func replay(engine *decision.Engine, logs []models.ThoughtLog) []Mismatch {
	var out []Mismatch
	for _, l := range logs {
		observed := decision.Observe(l.CountersBefore, l.PhaseBefore, l.Analysis)
		got := engine.Decide(decision.Input{
			Phase:        l.PhaseBefore,
			Analysis:     l.Analysis,
			Profile:      l.ProfileSnapshot,
			Counters:     observed,
			TurnNumber:   l.TurnNumber,
			SessionStart: l.SessionStartTime,
			Now:          l.DecidedAt,
		})
		if diff := cmp.Diff(l.Decision, got, cmpopts.EquateEmpty()); diff != "" {
			out = append(out, Mismatch{Turn: l.TurnNumber, Diff: diff})
		}
	}
	return out
}

func report(w io.Writer, sessionID string, turns int, mismatches []Mismatch) {
	if len(mismatches) == 0 {
		fmt.Fprintf(w, "session %s: all %d decisions reproduce\n", sessionID, turns)
		return
	}
	for _, m := range mismatches {
		fmt.Fprintf(w, "turn %d (-stored +replayed):\n%s\n", m.Turn, m.Diff)
	}
}

