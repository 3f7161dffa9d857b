package history

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aretw0/gamestate/pkg/domain"
	"github.com/aretw0/gamestate/pkg/ports"
)

// Critical-data paths.
const (
	KeyHistoryList         = "HistoryList"
	KeyHistoryPriorityList = "HistoryPriorityList"
	KeyRecordNumber        = "CurrentHistoryRecordNumber"
	KeyCyclePhase          = "Phase"

	stepPrefix = "HistoryStep/"
)

// ErrCorruptList is returned when the step and priority lists disagree.
var ErrCorruptList = errors.New("history list and priority list differ in length")

// StepKey returns the path of a recorded step block.
func StepKey(step uint) string {
	return stepPrefix + strconv.FormatUint(uint64(step), 10)
}

// IsStepKey reports whether path names a recorded step block.
func IsStepKey(path string) bool {
	return strings.HasPrefix(path, stepPrefix)
}

func readUints(tx ports.Transaction, path string) ([]uint, error) {
	data, err := tx.Read(domain.ScopeHistory, path)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var out []uint
	if err := decMode.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return out, nil
}

func writeUints(tx ports.Transaction, path string, values []uint) error {
	data, err := encMode.Marshal(values)
	if err != nil {
		return err
	}
	return tx.Write(domain.ScopeHistory, path, data)
}

// ReadList returns the HistoryList in replay order. A missing list is empty.
func ReadList(tx ports.Transaction) ([]domain.HistoryEntry, error) {
	steps, err := readUints(tx, KeyHistoryList)
	if err != nil {
		return nil, err
	}
	priorities, err := readUints(tx, KeyHistoryPriorityList)
	if err != nil {
		return nil, err
	}
	if len(steps) != len(priorities) {
		return nil, fmt.Errorf("%w: %d steps, %d priorities", ErrCorruptList, len(steps), len(priorities))
	}

	entries := make([]domain.HistoryEntry, len(steps))
	for i := range steps {
		entries[i] = domain.HistoryEntry{Step: steps[i], Priority: priorities[i]}
	}
	return entries, nil
}

// Count returns the number of recorded steps.
func Count(tx ports.Transaction) (int, error) {
	entries, err := ReadList(tx)
	return len(entries), err
}

// AppendEntries appends entries to the HistoryList.
func AppendEntries(tx ports.Transaction, entries ...domain.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	current, err := ReadList(tx)
	if err != nil {
		return err
	}
	steps := make([]uint, 0, len(current)+len(entries))
	priorities := make([]uint, 0, len(current)+len(entries))
	for _, e := range append(current, entries...) {
		steps = append(steps, e.Step)
		priorities = append(priorities, e.Priority)
	}
	if err := writeUints(tx, KeyHistoryList, steps); err != nil {
		return err
	}
	return writeUints(tx, KeyHistoryPriorityList, priorities)
}

// WriteBlock stores an encoded block under its step number.
func WriteBlock(tx ports.Transaction, step uint, data []byte) error {
	return tx.Write(domain.ScopeHistory, StepKey(step), data)
}

// ReadBlock loads and decodes a recorded step.
func ReadBlock(tx ports.Transaction, step uint) (*domain.CommonHistoryBlock, error) {
	data, err := tx.Read(domain.ScopeHistory, StepKey(step))
	if err != nil {
		return nil, fmt.Errorf("failed to read history step %d: %w", step, err)
	}
	return Decode(data)
}

// Clear removes every recorded step and resets the record counter, for a new game cycle.
func Clear(tx ports.Transaction) error {
	entries, err := ReadList(tx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := tx.Remove(domain.ScopeHistory, StepKey(e.Step)); err != nil {
			return err
		}
	}
	if err := tx.Remove(domain.ScopeHistory, KeyHistoryList); err != nil {
		return err
	}
	if err := tx.Remove(domain.ScopeHistory, KeyHistoryPriorityList); err != nil {
		return err
	}
	return tx.Remove(domain.ScopeGameCycle, KeyRecordNumber)
}

// CurrentRecordNumber returns the last step number handed out this game cycle (0 when none).
func CurrentRecordNumber(tx ports.Transaction) (uint, error) {
	data, err := tx.Read(domain.ScopeGameCycle, KeyRecordNumber)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	var n uint
	if err := decMode.Unmarshal(data, &n); err != nil {
		return 0, fmt.Errorf("failed to decode %s: %w", KeyRecordNumber, err)
	}
	return n, nil
}

// NextRecordNumber increments and returns the game-cycle record counter.
func NextRecordNumber(tx ports.Transaction) (uint, error) {
	n, err := CurrentRecordNumber(tx)
	if err != nil {
		return 0, err
	}
	n++
	data, err := encMode.Marshal(n)
	if err != nil {
		return 0, err
	}
	if err := tx.Write(domain.ScopeGameCycle, KeyRecordNumber, data); err != nil {
		return 0, err
	}
	return n, nil
}

// ReadPhase returns the game-cycle phase written by the host. ok is false when none is stored.
func ReadPhase(tx ports.Transaction) (phase domain.GameCyclePhase, ok bool, err error) {
	data, err := tx.Read(domain.ScopeGameCycle, KeyCyclePhase)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return domain.GameCyclePhase(data), true, nil
}

// WritePhase stores the game-cycle phase.
func WritePhase(tx ports.Transaction, phase domain.GameCyclePhase) error {
	return tx.Write(domain.ScopeGameCycle, KeyCyclePhase, []byte(phase))
}
