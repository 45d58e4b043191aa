// Package transaction wires the lock mode algebra, the granularity
// tree, and the wait-for graph into the multi-granularity two-phase
// locking engine: LockManager grants, blocks, promotes, and releases
// locks; Transaction drives a FIFO queue of pending operations against
// it and resolves to commit or abort.
//
// The engine is single-threaded and cooperative: it takes no internal
// locks, and a commit or abort re-drives waiting transactions through
// a direct call chain. Callers that use it from several goroutines must
// serialize every call into a LockManager and its Transactions
// themselves.
package transaction

import (
	"fmt"
	"sync/atomic"

	"github.com/johniel/mgl2pl/hierarchy"
	"github.com/johniel/mgl2pl/lockmode"
	"github.com/johniel/mgl2pl/waitgraph"
)

// globalClock produces the strictly monotonic id/timestamp pair every
// Transaction is constructed with. A single counter serves both roles:
// the wound-wait victim rule only needs a total order, and deriving
// both from one source guarantees a transaction created later always
// compares greater, with no possibility of a tie.
var globalClock uint64

func nextClock() uint64 {
	return atomic.AddUint64(&globalClock, 1)
}

// State is a transaction's position in its lifecycle.
type State int

const (
	Active State = iota
	Blocked
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Blocked:
		return "blocked"
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Transaction drives a FIFO queue of operations against a LockManager,
// one at a time, blocking on the first incompatible holder it meets
// and resuming when that holder terminates.
type Transaction struct {
	ID        uint64
	Timestamp uint64

	state      State
	pending    []*Operation
	held       map[*hierarchy.Node]lockmode.LockMode
	waitingFor *hierarchy.Node

	lm   *LockManager
	wait *waitgraph.Graph
}

// NewTransaction creates a new transaction bound to lm and wait,
// assigns it the next id/timestamp, and registers it with lm so that
// other transactions' deadlock resolution and unblock propagation can
// find it by id. wait must be the same graph lm was constructed with.
func NewTransaction(lm *LockManager, wait *waitgraph.Graph) *Transaction {
	clock := nextClock()
	t := &Transaction{
		ID:        clock,
		Timestamp: clock,
		state:     Active,
		held:      make(map[*hierarchy.Node]lockmode.LockMode),
		lm:        lm,
		wait:      wait,
	}
	lm.register(t)
	return t
}

// State returns the transaction's current lifecycle state.
func (t *Transaction) State() State { return t.state }

// WaitingFor returns the node the transaction is blocked on, or nil if
// it is not blocked.
func (t *Transaction) WaitingFor() *hierarchy.Node { return t.waitingFor }

// LocksHeld returns a copy of the set of locks the transaction
// currently holds.
func (t *Transaction) LocksHeld() map[*hierarchy.Node]lockmode.LockMode {
	out := make(map[*hierarchy.Node]lockmode.LockMode, len(t.held))
	for n, m := range t.held {
		out[n] = m
	}
	return out
}

func (t *Transaction) String() string {
	return fmt.Sprintf("Transaction(%d, State: %s, Pending: %d)", t.ID, t.state, len(t.pending))
}

// CreateOperation enqueues Operation(kind, node) and drives the
// transaction's pending queue. On a terminated transaction this is a
// no-op: state-mutating operations on a committed or aborted
// transaction never take effect.
func (t *Transaction) CreateOperation(node *hierarchy.Node, kind lockmode.OperationKind) {
	if t.state == Committed || t.state == Aborted {
		return
	}
	t.pending = append(t.pending, &Operation{Kind: kind, Node: node})
	t.drive()
}

// drive processes the pending queue head-first while the transaction
// is active, requesting or promoting the lock each operation needs and
// appending it to the Schedule on success. It stops the moment an
// operation cannot be completed immediately, leaving that operation at
// the head of the queue for the next drive() (triggered by an
// unblocking terminal event elsewhere) to retry.
func (t *Transaction) drive() {
	for t.state == Active && len(t.pending) > 0 {
		op := t.pending[0]

		if op.Kind == lockmode.Commit {
			t.Commit()
			continue
		}

		wantMode, err := lockmode.RequestedMode(op.Kind)
		if err != nil {
			// OperationKind is a closed enum; reaching here means a
			// caller built an Operation without going through the
			// exported constants.
			panic(err)
		}

		if cur, held := t.held[op.Node]; held && cur != wantMode {
			granted, _ := t.lm.PromoteLock(t, op.Node, wantMode)
			if !granted {
				return
			}
			t.pending = t.pending[1:]
			continue
		}

		if !t.lm.RequestLock(t, op.Node, op.Kind) {
			return
		}
		t.pending = t.pending[1:]
	}
}

// Commit transitions the transaction to Committed, releases all of its
// locks, clears its pending queue, records the terminal entry, and
// unblocks every transaction waiting on it. It is a no-op if the
// transaction is not Active.
func (t *Transaction) Commit() {
	if t.state != Active {
		return
	}
	t.state = Committed
	t.lm.ReleaseAll(t)
	t.pending = nil
	t.lm.schedule.appendTerminal(t.ID, "Committed")
	t.unblockWaiters()
}

// Abort transitions the transaction to Aborted, releases all of its
// locks, clears its pending queue, records the terminal entry, and
// unblocks every transaction waiting on it. It is a no-op if the
// transaction has already reached a terminal state.
func (t *Transaction) Abort() {
	if t.state == Committed || t.state == Aborted {
		return
	}
	t.state = Aborted
	t.lm.ReleaseAll(t)
	t.pending = nil
	t.lm.schedule.appendTerminal(t.ID, "Aborted")
	t.unblockWaiters()
}

// unblockWaiters removes every wait-for edge pointing at t, reactivates
// each such waiter, and re-drives it. A waiter's drive() may itself
// recurse into further grants, promotions, or aborts; the recursion
// depth is bounded by the length of the chain of transactions being
// unblocked.
func (t *Transaction) unblockWaiters() {
	waiters := t.wait.WaitersOf(t.ID)
	for _, e := range waiters {
		t.wait.RemoveEdge(e.Waiter, t.ID)
		w := t.lm.lookup(e.Waiter)
		if w == nil {
			continue
		}
		w.state = Active
		w.waitingFor = nil
		w.drive()
	}
	t.wait.RemoveVertex(t.ID)
}
