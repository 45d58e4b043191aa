package transaction

import (
	"errors"

	"github.com/johniel/mgl2pl/hierarchy"
	"github.com/johniel/mgl2pl/lockmode"
	"github.com/johniel/mgl2pl/waitgraph"
)

// ErrNoSuchLock is returned by PromoteLock when the transaction does
// not currently hold any lock at the node being promoted.
var ErrNoSuchLock = errors.New("transaction: no lock held at node")

// LockManager grants, blocks, promotes, and releases locks across a
// granularity tree, and resolves deadlock among blocked transactions
// using the wait-for graph. It is not safe for concurrent use from
// multiple goroutines: the core is a single-threaded, cooperative
// engine by design (see package doc), and a caller driving it from
// multiple goroutines must serialize its own calls into a LockManager
// and the Transactions built on it.
type LockManager struct {
	tree     *hierarchy.Tree
	wait     *waitgraph.Graph
	schedule *ScheduleRecorder
	byID     map[uint64]*Transaction
}

// NewLockManager creates a lock manager operating over tree and wait.
func NewLockManager(tree *hierarchy.Tree, wait *waitgraph.Graph) *LockManager {
	return &LockManager{
		tree:     tree,
		wait:     wait,
		schedule: newScheduleRecorder(),
		byID:     make(map[uint64]*Transaction),
	}
}

// Schedule returns the operations and terminal outcomes recorded so
// far, in the order they were granted or reached.
func (lm *LockManager) Schedule() []ScheduleEntry {
	return lm.schedule.Entries()
}

func (lm *LockManager) register(t *Transaction) {
	lm.byID[t.ID] = t
}

func (lm *LockManager) lookup(id uint64) *Transaction {
	return lm.byID[id]
}

// RequestLock requests the lock mode that kind maps to for t at n. It
// returns true iff the lock was granted immediately. On failure t is
// left blocked (with a wait-for edge recorded against the chosen
// blocking holder) unless a cycle check during this call aborted t or
// its blocker outright.
func (lm *LockManager) RequestLock(t *Transaction, n *hierarchy.Node, kind lockmode.OperationKind) bool {
	if t.State() == Blocked {
		return false
	}

	wantMode, err := lockmode.RequestedMode(kind)
	if err != nil {
		panic(err)
	}

	if cur, held := t.held[n]; held && cur == wantMode {
		return true
	}

	if lm.tryGrant(t, n, wantMode) {
		lm.schedule.appendOperation(t.ID, Operation{Kind: kind, Node: n})
		return true
	}
	return false
}

// PromoteLock requires t to hold some mode at n, validates the
// promotion is in the lattice, releases the current mode, and attempts
// to grant newMode in its place. If the grant does not succeed
// immediately, the old mode is restored and any tentative block this
// call created is undone. Exception: if t itself was chosen as the
// deadlock victim during that attempt, t is already terminated and
// there is nothing to restore. It returns (true, nil) iff newMode was
// granted.
func (lm *LockManager) PromoteLock(t *Transaction, n *hierarchy.Node, newMode lockmode.LockMode) (bool, error) {
	oldMode, held := t.held[n]
	if !held {
		return false, ErrNoSuchLock
	}
	if !lockmode.ValidPromotion(oldMode, newMode) {
		return false, lockmode.ErrInvalidPromotion
	}

	lm.releaseOne(t, n, oldMode)

	if lm.tryGrant(t, n, newMode) {
		lm.schedule.appendOperation(t.ID, Operation{Kind: promotionKind(newMode), Node: n})
		return true, nil
	}

	if t.State() == Aborted {
		return false, nil
	}

	if t.State() == Blocked && t.waitingFor == n {
		lm.wait.RemoveOutgoing(t.ID)
		t.state = Active
		t.waitingFor = nil
	}

	lm.applyGrant(t, n, oldMode)
	return false, nil
}

// ReleaseLock releases mode (or, if mode is nil, whatever single mode t
// holds) at n. It is a no-op if t holds no lock at n, or if mode is
// given but does not match what t holds.
func (lm *LockManager) ReleaseLock(t *Transaction, n *hierarchy.Node, mode *lockmode.LockMode) {
	cur, held := t.held[n]
	if !held {
		return
	}
	if mode != nil && *mode != cur {
		return
	}
	lm.releaseOne(t, n, cur)
}

// ReleaseAll releases every lock t currently holds, across every node.
// It does not touch the wait-for graph: Commit and Abort handle that
// separately, after release, as part of unblocking waiters.
func (lm *LockManager) ReleaseAll(t *Transaction) {
	nodes := make([]*hierarchy.Node, 0, len(t.held))
	for n := range t.held {
		nodes = append(nodes, n)
	}
	for _, n := range nodes {
		if m, ok := t.held[n]; ok {
			lm.releaseOne(t, n, m)
		}
	}
}

// tryGrant attempts to grant mode to t at n against the current
// holders. On success it applies the grant and returns true. On
// failure it selects a blocking holder (Node.SelectBlocker: a CL holder
// first, then lockmode.BlockingScanOrder), records a wait-for edge,
// marks t blocked, runs deadlock resolution, and returns false.
func (lm *LockManager) tryGrant(t *Transaction, n *hierarchy.Node, mode lockmode.LockMode) bool {
	others := n.HeldModesExcluding(t.ID)
	if lockmode.Compatible(mode, others) {
		lm.applyGrant(t, n, mode)
		return true
	}

	blocker, ok := n.SelectBlocker(t.ID)
	if !ok {
		return false
	}

	if !lm.wait.AddEdge(t.ID, blocker, n) {
		return false
	}

	t.state = Blocked
	t.waitingFor = n
	lm.resolveDeadlock(t, blocker)
	return false
}

// resolveDeadlock checks for a cycle after the edge t.ID->blocker was
// just added and, if one exists, aborts the younger of the two
// endpoints (the one with the larger timestamp), ties going to the
// waiter t.
func (lm *LockManager) resolveDeadlock(t *Transaction, blocker uint64) {
	if !lm.wait.HasCycle() {
		return
	}

	b := lm.lookup(blocker)
	victim := t
	if b != nil && b.Timestamp > t.Timestamp {
		victim = b
	}
	victim.Abort()
}

// applyGrant records t as a holder of mode at n, back-propagates the
// corresponding intention lock to every strict ancestor of n (via
// reference counting, since multiple independent descendants may
// contribute the same ancestor intention lock), and front-propagates
// mode itself to every strict descendant of n, including t.held so
// LocksHeld reports descendant coverage.
func (lm *LockManager) applyGrant(t *Transaction, n *hierarchy.Node, mode lockmode.LockMode) {
	n.AddHolder(mode, t.ID)
	t.held[n] = mode

	if im, ok := lockmode.Intention(mode); ok {
		for _, a := range n.Ancestors() {
			a.IncIntentionRef(t.ID, im)
		}
	}

	for _, d := range n.Descendants() {
		d.AddHolder(mode, t.ID)
		t.held[d] = mode
	}
}

// releaseOne removes t's grant of mode at n: the holder entry at n
// itself, the front-propagated copies at every descendant, and one
// reference-counted contribution to the intention lock at every
// strict ancestor.
func (lm *LockManager) releaseOne(t *Transaction, n *hierarchy.Node, mode lockmode.LockMode) {
	delete(t.held, n)
	n.RemoveHolder(mode, t.ID)

	for _, d := range n.Descendants() {
		d.RemoveHolder(mode, t.ID)
		delete(t.held, d)
	}

	if im, ok := lockmode.Intention(mode); ok {
		for _, a := range n.Ancestors() {
			a.DecIntentionRef(t.ID, im)
		}
	}
}

// promotionKind maps a promoted-to effective mode back to the
// OperationKind recorded for it in the Schedule.
func promotionKind(mode lockmode.LockMode) lockmode.OperationKind {
	switch mode {
	case lockmode.WL:
		return lockmode.Write
	case lockmode.UL:
		return lockmode.Update
	case lockmode.CL:
		return lockmode.Commit
	default:
		return lockmode.Read
	}
}
