package board

type DragKind int

const (
	DragTicket DragKind = iota + 1
	DragPhase
)

// Drag is an in-flight drag gesture. It is created when the gesture starts
// and consumed by Drop; it is never stored.
type Drag struct {
	Kind     DragKind
	ID       int64
	SourceID int64 // phase holding the dragged ticket; equals ID for phase drags
}

// DropTarget is what the pointer was over on release. TicketID is zero when
// the drop landed on empty phase space. The zero value means no target.
type DropTarget struct {
	PhaseID  int64
	TicketID int64
}

func (t DropTarget) empty() bool { return t.PhaseID == 0 && t.TicketID == 0 }

func StartTicketDrag(b Board, ticketID int64) (Drag, error) {
	t, ok := b.Ticket(ticketID)
	if !ok {
		return Drag{}, errTicketNotFound
	}
	return Drag{Kind: DragTicket, ID: ticketID, SourceID: t.PhaseID}, nil
}

func StartPhaseDrag(b Board, phaseID int64) (Drag, error) {
	if _, ok := b.Phase(phaseID); !ok {
		return Drag{}, errPhaseNotFound
	}
	return Drag{Kind: DragPhase, ID: phaseID, SourceID: phaseID}, nil
}

// Drop resolves the gesture into the command to apply. It reports false when
// the drop changes nothing: no target, a drop on the dragged item itself, or
// a ticket released over its own phase's empty space.
func (d Drag) Drop(target DropTarget) (Command, bool) {
	if target.empty() {
		return nil, false
	}
	switch d.Kind {
	case DragTicket:
		if target.TicketID == d.ID {
			return nil, false
		}
		if target.TicketID == 0 && target.PhaseID == d.SourceID {
			return nil, false
		}
		return MoveTicket{TicketID: d.ID, TargetPhaseID: target.PhaseID, TargetTicketID: target.TicketID}, true
	case DragPhase:
		if target.PhaseID == 0 || target.PhaseID == d.ID {
			return nil, false
		}
		return ReorderPhase{PhaseID: d.ID, TargetPhaseID: target.PhaseID}, true
	}
	return nil, false
}
