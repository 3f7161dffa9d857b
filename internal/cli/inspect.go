package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/aretw0/gamestate/pkg/domain"
	"github.com/aretw0/gamestate/pkg/history"
	"github.com/aretw0/gamestate/pkg/ports"
)

// Status is the persisted view of a machine.
type Status struct {
	Machine      string                `json:"machine"`
	Storage      *domain.StateStorage  `json:"storage,omitempty"`
	Phase        domain.GameCyclePhase `json:"phase,omitempty"`
	RecordNumber uint                  `json:"record_number"`
	HistorySteps int                   `json:"history_steps"`
}

// HistoryRow is one recorded step.
type HistoryRow struct {
	Step     uint           `json:"step"`
	Priority uint           `json:"priority"`
	State    string         `json:"state"`
	Data     domain.DataBag `json:"data,omitempty"`
}

// Inspect reads the state pointer and game-cycle bookkeeping of machine.
func Inspect(ctx context.Context, store ports.CriticalDataStore, machine string) (*Status, error) {
	tx, err := store.Begin(ctx, "inspect")
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	st := &Status{Machine: machine}

	data, err := tx.Read(domain.ScopeGameMode, domain.StateStorageKey(machine))
	switch {
	case err == nil:
		st.Storage = &domain.StateStorage{}
		if err := json.Unmarshal(data, st.Storage); err != nil {
			return nil, fmt.Errorf("failed to decode state storage: %w", err)
		}
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	if st.Phase, _, err = history.ReadPhase(tx); err != nil {
		return nil, err
	}
	if st.RecordNumber, err = history.CurrentRecordNumber(tx); err != nil {
		return nil, err
	}
	if st.HistorySteps, err = history.Count(tx); err != nil {
		return nil, err
	}
	return st, nil
}

// ReadHistory loads every recorded step at or above minPriority, in replay order.
func ReadHistory(ctx context.Context, store ports.CriticalDataStore, minPriority uint) ([]HistoryRow, error) {
	tx, err := store.Begin(ctx, "history")
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	entries, err := history.ReadList(tx)
	if err != nil {
		return nil, err
	}
	rows := make([]HistoryRow, 0, len(entries))
	for _, e := range entries {
		if e.Priority < minPriority {
			continue
		}
		block, err := history.ReadBlock(tx, e.Step)
		if err != nil {
			return nil, err
		}
		rows = append(rows, HistoryRow{Step: e.Step, Priority: e.Priority, State: block.StateName, Data: block.Data})
	}
	return rows, nil
}

// WriteStatus prints st as JSON or as aligned text.
func WriteStatus(w io.Writer, st *Status, asJSON bool) error {
	if asJSON {
		return writeJSON(w, st)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "machine:\t%s\n", st.Machine)
	if st.Storage == nil {
		fmt.Fprintf(tw, "state:\t(not started)\n")
	} else {
		fmt.Fprintf(tw, "state:\t%s\n", st.Storage.CurrentState)
		fmt.Fprintf(tw, "stage:\t%s\n", st.Storage.StateStage)
	}
	if st.Phase != "" {
		fmt.Fprintf(tw, "phase:\t%s\n", st.Phase)
	}
	fmt.Fprintf(tw, "record number:\t%d\n", st.RecordNumber)
	fmt.Fprintf(tw, "history steps:\t%d\n", st.HistorySteps)
	return tw.Flush()
}

// WriteHistory prints rows as JSON or as a table.
func WriteHistory(w io.Writer, rows []HistoryRow, asJSON bool) error {
	if asJSON {
		return writeJSON(w, rows)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tPRIORITY\tSTATE\tVALUES")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%d\n", r.Step, r.Priority, r.State, r.Data.Len())
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
