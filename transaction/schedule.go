package transaction

import (
	"fmt"
	"strings"
)

// ScheduleEntryKind distinguishes the two shapes a ScheduleEntry can
// take: a granted operation, or a transaction's terminal outcome.
type ScheduleEntryKind int

const (
	ScheduleOperation ScheduleEntryKind = iota
	ScheduleTerminal
)

// ScheduleEntry is one append-only record in the Schedule Recorder: a
// granted operation (including promotions, recorded under the
// OperationKind their target mode maps to) or a transaction's terminal
// label ("Committed"/"Aborted").
type ScheduleEntry struct {
	TxnID     uint64
	Kind      ScheduleEntryKind
	Operation Operation // valid when Kind == ScheduleOperation
	Terminal  string    // valid when Kind == ScheduleTerminal
}

func (e ScheduleEntry) String() string {
	if e.Kind == ScheduleTerminal {
		return fmt.Sprintf("Transaction %d - %s", e.TxnID, e.Terminal)
	}
	return fmt.Sprintf("Transaction %d - %s", e.TxnID, e.Operation)
}

// ScheduleRecorder is an append-only, in-memory record of every
// operation granted and every transaction's terminal outcome, in the
// order they occurred. It is not persisted to disk: durability is an
// explicit non-goal of this module.
type ScheduleRecorder struct {
	entries []ScheduleEntry
}

func newScheduleRecorder() *ScheduleRecorder {
	return &ScheduleRecorder{}
}

func (sr *ScheduleRecorder) appendOperation(txnID uint64, op Operation) {
	sr.entries = append(sr.entries, ScheduleEntry{TxnID: txnID, Kind: ScheduleOperation, Operation: op})
}

func (sr *ScheduleRecorder) appendTerminal(txnID uint64, label string) {
	sr.entries = append(sr.entries, ScheduleEntry{TxnID: txnID, Kind: ScheduleTerminal, Terminal: label})
}

// Entries returns a copy of the schedule recorded so far, in the order
// the entries were appended.
func (sr *ScheduleRecorder) Entries() []ScheduleEntry {
	out := make([]ScheduleEntry, len(sr.entries))
	copy(out, sr.entries)
	return out
}

// String renders the schedule one entry per line.
func (sr *ScheduleRecorder) String() string {
	var b strings.Builder
	for _, e := range sr.entries {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	return b.String()
}
