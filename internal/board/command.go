package board

import "time"

// Command is one board mutation. The set of commands is closed.
type Command interface {
	command()
}

type AddPhase struct {
	Title string
	Color Color
}

// RenamePhase edits a phase in place. An empty Title or Color keeps the
// current value.
type RenamePhase struct {
	PhaseID int64
	Title   string
	Color   Color
}

type DeletePhase struct {
	PhaseID int64
}

// ReorderPhase moves PhaseID to the index currently held by TargetPhaseID.
type ReorderPhase struct {
	PhaseID       int64
	TargetPhaseID int64
}

// AddTicket appends a ticket to PhaseID, or to the first phase when PhaseID
// is zero.
type AddTicket struct {
	PhaseID     int64
	Title       string
	Description string
	Priority    Priority
	AssigneeID  *int64
	CreatedAt   time.Time
}

// UpdateTicket patches a ticket. Nil fields are left alone; a blank Title
// keeps the current title and an AssigneeID pointing at zero unassigns.
type UpdateTicket struct {
	TicketID    int64
	Title       *string
	Description *string
	Priority    *Priority
	AssigneeID  *int64
}

type DeleteTicket struct {
	TicketID int64
}

// MoveTicket is a resolved ticket drop. TargetTicketID is zero when the
// ticket was dropped on empty phase space; TargetPhaseID may be zero when it
// can be inferred from TargetTicketID.
type MoveTicket struct {
	TicketID       int64
	TargetPhaseID  int64
	TargetTicketID int64
}

type AddComment struct {
	TicketID int64
	AuthorID int64
	Content  string
	At       time.Time
}

type DeleteComment struct {
	CommentID int64
}

type AttachMember struct {
	TicketID int64
	UserID   int64
}

type DetachMember struct {
	TicketID int64
	UserID   int64
}

func (AddPhase) command()      {}
func (RenamePhase) command()   {}
func (DeletePhase) command()   {}
func (ReorderPhase) command()  {}
func (AddTicket) command()     {}
func (UpdateTicket) command()  {}
func (DeleteTicket) command()  {}
func (MoveTicket) command()    {}
func (AddComment) command()    {}
func (DeleteComment) command() {}
func (AttachMember) command()  {}
func (DetachMember) command()  {}
