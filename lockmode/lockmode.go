// Package lockmode defines the eight lock modes of multi-granularity
// locking, the operations that request them, the compatibility matrix
// between them, and the lattice of legal promotions.
package lockmode

import "errors"

// LockMode is one of the eight modes a transaction can hold on a
// granularity-tree node: four intention modes used on ancestors of the
// resource actually being touched, and four effective modes used on the
// resource itself.
type LockMode int

const (
	IRL LockMode = iota // intention read
	IWL                 // intention write
	IUL                 // intention update
	ICL                 // intention certify
	RL                  // read
	WL                  // write
	UL                  // update
	CL                  // certify
)

func (m LockMode) String() string {
	switch m {
	case IRL:
		return "IRL"
	case IWL:
		return "IWL"
	case IUL:
		return "IUL"
	case ICL:
		return "ICL"
	case RL:
		return "RL"
	case WL:
		return "WL"
	case UL:
		return "UL"
	case CL:
		return "CL"
	default:
		return "UNKNOWN"
	}
}

// OperationKind is the kind of access a transaction performs on a node.
type OperationKind int

const (
	Read OperationKind = iota
	Update
	Write
	Commit
)

func (k OperationKind) String() string {
	switch k {
	case Read:
		return "READ"
	case Update:
		return "UPDATE"
	case Write:
		return "WRITE"
	case Commit:
		return "COMMIT"
	default:
		return "UNKNOWN"
	}
}

// ErrInvalidOperationKind is returned when an OperationKind does not map
// to a lock mode. With a closed enum this should never occur at
// runtime; callers that construct OperationKind values through the
// exported constants cannot trigger it.
var ErrInvalidOperationKind = errors.New("lockmode: invalid operation kind")

// ErrInvalidPromotion is returned when a requested promotion is not
// present in the promotion lattice.
var ErrInvalidPromotion = errors.New("lockmode: invalid lock promotion")

// RequestedMode maps an operation kind to the effective lock mode it
// requires: READ->RL, UPDATE->UL, WRITE->WL, COMMIT->CL.
func RequestedMode(kind OperationKind) (LockMode, error) {
	switch kind {
	case Read:
		return RL, nil
	case Update:
		return UL, nil
	case Write:
		return WL, nil
	case Commit:
		return CL, nil
	default:
		return 0, ErrInvalidOperationKind
	}
}

// Intention maps an effective mode to the intention mode that must be
// held on its strict ancestors. Modes that are already intention modes
// have no further intention form.
func Intention(mode LockMode) (LockMode, bool) {
	switch mode {
	case RL:
		return IRL, true
	case WL:
		return IWL, true
	case UL:
		return IUL, true
	case CL:
		return ICL, true
	default:
		return 0, false
	}
}

// promotionLattice lists, for each mode, the modes it may be promoted
// to directly. Anything not listed here is an invalid promotion.
var promotionLattice = map[LockMode][]LockMode{
	RL:  {UL, WL},
	UL:  {WL, CL},
	WL:  {CL},
	IRL: {RL},
	IWL: {WL},
	IUL: {UL},
}

// ValidPromotion reports whether from may be promoted directly to to.
func ValidPromotion(from, to LockMode) bool {
	for _, m := range promotionLattice[from] {
		if m == to {
			return true
		}
	}
	return false
}

// BlockingScanOrder is the fixed order in which a node's holder sets
// are scanned to pick a blocking holder: effective modes before
// intention modes, most restrictive first.
var BlockingScanOrder = []LockMode{WL, UL, RL, IWL, IUL, IRL}

// Compatible reports whether requested may be granted given the modes
// already held by other transactions at the same node.
func Compatible(requested LockMode, heldByOthers []LockMode) bool {
	has := func(modes ...LockMode) bool {
		for _, h := range heldByOthers {
			for _, m := range modes {
				if h == m {
					return true
				}
			}
		}
		return false
	}

	switch requested {
	case RL:
		return !has(WL, UL, IUL, IWL, CL, ICL)
	case WL, UL, CL:
		return len(heldByOthers) == 0
	case IRL:
		return !has(CL, UL)
	case IWL, IUL:
		return !has(WL, UL, CL)
	case ICL:
		return !has(WL, RL, UL, CL)
	default:
		return false
	}
}
