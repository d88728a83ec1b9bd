package backup

import "fmt"

// PlanKind is the type of transfer chosen for a dataset and backup pool
type PlanKind int

const (
	PlanNoOp PlanKind = iota
	PlanFull
	PlanIncremental
)

func (k PlanKind) String() string {
	switch k {
	case PlanFull:
		return "full"
	case PlanIncremental:
		return "incremental"
	default:
		return "noop"
	}
}

// Plan is the transfer computed for one (dataset, backup pool) pair.
// From is only set for incremental plans.
type Plan struct {
	Kind PlanKind
	From string
	To   string
}

func (p Plan) String() string {
	switch p.Kind {
	case PlanFull:
		return fmt.Sprintf("full(%s)", p.To)
	case PlanIncremental:
		return fmt.Sprintf("incremental(%s..%s)", p.From, p.To)
	default:
		return "noop"
	}
}

// Decide chooses the transfer bringing a destination whose newest system
// snapshot is remote (empty when there is none) up to local.
func Decide(local, remote string) (Plan, error) {
	if local == "" {
		return Plan{}, ErrNoLocalSnapshot
	}

	switch {
	case remote == "":
		return Plan{Kind: PlanFull, To: local}, nil
	case remote == local:
		return Plan{Kind: PlanNoOp}, nil
	}

	remoteTS, remoteOK := autoTimestamp(remote)
	localTS, localOK := autoTimestamp(local)
	if remoteOK && localOK && remoteTS >= localTS {
		return Plan{}, fmt.Errorf("%w: %s is not older than %s", ErrLineageRegression, remote, local)
	}

	return Plan{Kind: PlanIncremental, From: remote, To: local}, nil
}
