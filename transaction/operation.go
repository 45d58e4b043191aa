package transaction

import (
	"fmt"

	"github.com/johniel/mgl2pl/hierarchy"
	"github.com/johniel/mgl2pl/lockmode"
)

// Operation is a single pending action a transaction wants to perform
// against a node of the granularity tree.
type Operation struct {
	Kind lockmode.OperationKind
	Node *hierarchy.Node
}

func (op Operation) String() string {
	return fmt.Sprintf("Operation(%s, %s)", op.Kind, op.Node.Name())
}
