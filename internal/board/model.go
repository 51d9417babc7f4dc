// Package board holds a project's Kanban board as an in-memory value and
// the reducer that applies board commands to it.
//
// Apply never mutates its input: it returns a new snapshot together with the
// domain events the store needs to persist the change. The package performs
// no I/O; ids of entities created by a command stay zero until the store
// assigns them.
package board

import (
	"slices"
	"strings"
	"time"

	"devconnect/internal/apperr"
)

type Priority string

const (
	Low    Priority = "Low"
	Medium Priority = "Medium"
	High   Priority = "High"
)

// ParsePriority accepts both the board spelling ("High") and the legacy
// lowercase API values ("high"). An empty string yields Medium.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return Medium, nil
	case "low":
		return Low, nil
	case "medium":
		return Medium, nil
	case "high":
		return High, nil
	}
	return "", apperr.E(apperr.Validation, "Priorité invalide")
}

type Color string

const DefaultColor Color = "gray"

var palette = map[Color]bool{
	"gray":   true,
	"blue":   true,
	"green":  true,
	"orange": true,
	"pink":   true,
	"purple": true,
}

// ParseColor validates a phase color. An empty string yields DefaultColor.
func ParseColor(s string) (Color, error) {
	c := Color(strings.ToLower(strings.TrimSpace(s)))
	if c == "" {
		return DefaultColor, nil
	}
	if !palette[c] {
		return "", apperr.E(apperr.Validation, "Couleur invalide")
	}
	return c, nil
}

type Comment struct {
	ID        int64     `json:"id"`
	TicketID  int64     `json:"task_id"`
	AuthorID  int64     `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Ticket struct {
	ID          int64     `json:"id"`
	PhaseID     int64     `json:"phase_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Priority    Priority  `json:"priority"`
	AssigneeID  *int64    `json:"assigned_to"`
	Members     []int64   `json:"members"`
	CreatedAt   time.Time `json:"created_at"`
	Comments    []Comment `json:"comments"`
}

func (t Ticket) hasMember(userID int64) bool {
	return slices.Contains(t.Members, userID)
}

type Phase struct {
	ID        int64    `json:"id"`
	ProjectID int64    `json:"project_id"`
	Title     string   `json:"title"`
	Color     Color    `json:"color"`
	Tickets   []Ticket `json:"tickets"`
}

// TicketIDs returns the phase's ticket ids in board order.
func (p Phase) TicketIDs() []int64 {
	ids := make([]int64, len(p.Tickets))
	for i, t := range p.Tickets {
		ids[i] = t.ID
	}
	return ids
}

// DefaultPhases are the columns every new project starts with.
var DefaultPhases = []Phase{
	{Title: "To do", Color: "gray"},
	{Title: "In Progress", Color: "blue"},
	{Title: "Done", Color: "green"},
}

type Board struct {
	ProjectID int64   `json:"project_id"`
	Phases    []Phase `json:"phases"`
}

// Clone returns a deep copy of b.
func (b Board) Clone() Board {
	out := Board{ProjectID: b.ProjectID, Phases: slices.Clone(b.Phases)}
	for i, p := range out.Phases {
		p.Tickets = slices.Clone(p.Tickets)
		for j, t := range p.Tickets {
			if t.AssigneeID != nil {
				v := *t.AssigneeID
				t.AssigneeID = &v
			}
			t.Members = slices.Clone(t.Members)
			t.Comments = slices.Clone(t.Comments)
			p.Tickets[j] = t
		}
		out.Phases[i] = p
	}
	return out
}

// PhaseIDs returns the phase ids in board order.
func (b Board) PhaseIDs() []int64 {
	ids := make([]int64, len(b.Phases))
	for i, p := range b.Phases {
		ids[i] = p.ID
	}
	return ids
}

func (b Board) Phase(id int64) (Phase, bool) {
	if i, ok := b.phaseIndex(id); ok {
		return b.Phases[i], true
	}
	return Phase{}, false
}

func (b Board) Ticket(id int64) (Ticket, bool) {
	if pi, ti, ok := b.ticketIndex(id); ok {
		return b.Phases[pi].Tickets[ti], true
	}
	return Ticket{}, false
}

func (b Board) Comment(id int64) (Comment, bool) {
	if pi, ti, ci, ok := b.commentIndex(id); ok {
		return b.Phases[pi].Tickets[ti].Comments[ci], true
	}
	return Comment{}, false
}

// Tickets returns every ticket, phase by phase.
func (b Board) Tickets() []Ticket {
	var out []Ticket
	for _, p := range b.Phases {
		out = append(out, p.Tickets...)
	}
	return out
}

func (b Board) phaseIndex(id int64) (int, bool) {
	for i, p := range b.Phases {
		if p.ID == id {
			return i, true
		}
	}
	return -1, false
}

func (b Board) ticketIndex(id int64) (int, int, bool) {
	for pi, p := range b.Phases {
		for ti, t := range p.Tickets {
			if t.ID == id {
				return pi, ti, true
			}
		}
	}
	return -1, -1, false
}

func (b Board) commentIndex(id int64) (int, int, int, bool) {
	for pi, p := range b.Phases {
		for ti, t := range p.Tickets {
			for ci, c := range t.Comments {
				if c.ID == id {
					return pi, ti, ci, true
				}
			}
		}
	}
	return -1, -1, -1, false
}

var (
	errPhaseNotFound   = apperr.E(apperr.NotFound, "Phase non trouvée")
	errTicketNotFound  = apperr.E(apperr.NotFound, "Tâche non trouvée")
	errCommentNotFound = apperr.E(apperr.NotFound, "Commentaire non trouvé")
)
