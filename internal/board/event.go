package board

// Event describes one persisted consequence of a command. Orders list ids
// in their new board order; a zero id stands for the entity the same event
// creates.
type Event interface {
	Kind() string
}

type PhaseAdded struct {
	Phase Phase   `json:"phase"`
	Order []int64 `json:"order"`
}

type PhaseUpdated struct {
	PhaseID int64  `json:"phase_id"`
	Title   string `json:"title"`
	Color   Color  `json:"color"`
}

type PhaseDeleted struct {
	PhaseID int64 `json:"phase_id"`
}

type PhasesReordered struct {
	Order []int64 `json:"order"`
}

type TicketAdded struct {
	Ticket Ticket  `json:"ticket"`
	Order  []int64 `json:"order"`
}

type TicketUpdated struct {
	Ticket Ticket `json:"ticket"`
}

type TicketDeleted struct {
	TicketID int64 `json:"task_id"`
	PhaseID  int64 `json:"phase_id"`
}

// TicketMoved covers both reorders (FromPhaseID == ToPhaseID) and moves
// between phases.
type TicketMoved struct {
	TicketID    int64   `json:"task_id"`
	FromPhaseID int64   `json:"from_phase_id"`
	ToPhaseID   int64   `json:"to_phase_id"`
	FromOrder   []int64 `json:"from_order"`
	ToOrder     []int64 `json:"to_order"`
}

type TicketMembersChanged struct {
	TicketID int64   `json:"task_id"`
	Members  []int64 `json:"members"`
}

type CommentAdded struct {
	Comment Comment `json:"comment"`
}

type CommentDeleted struct {
	CommentID int64 `json:"comment_id"`
	TicketID  int64 `json:"task_id"`
}

func (PhaseAdded) Kind() string           { return "phase.created" }
func (PhaseUpdated) Kind() string         { return "phase.updated" }
func (PhaseDeleted) Kind() string         { return "phase.deleted" }
func (PhasesReordered) Kind() string      { return "phase.moved" }
func (TicketAdded) Kind() string          { return "task.created" }
func (TicketUpdated) Kind() string        { return "task.updated" }
func (TicketDeleted) Kind() string        { return "task.deleted" }
func (TicketMoved) Kind() string          { return "task.moved" }
func (TicketMembersChanged) Kind() string { return "task.members" }
func (CommentAdded) Kind() string         { return "comment.created" }
func (CommentDeleted) Kind() string       { return "comment.deleted" }
