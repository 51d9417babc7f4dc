package board

import (
	"slices"
	"strings"
	"time"

	"devconnect/internal/apperr"
)

// Apply runs cmd against b. It returns the resulting snapshot and the events
// describing the change. A command that changes nothing returns b itself and
// no events. b is never modified.
func Apply(b Board, cmd Command) (Board, []Event, error) {
	switch c := cmd.(type) {
	case AddPhase:
		return addPhase(b, c)
	case RenamePhase:
		return renamePhase(b, c)
	case DeletePhase:
		return deletePhase(b, c)
	case ReorderPhase:
		return reorderPhase(b, c)
	case AddTicket:
		return addTicket(b, c)
	case UpdateTicket:
		return updateTicket(b, c)
	case DeleteTicket:
		return deleteTicket(b, c)
	case MoveTicket:
		return moveTicket(b, c)
	case AddComment:
		return addComment(b, c)
	case DeleteComment:
		return deleteComment(b, c)
	case AttachMember:
		return attachMember(b, c)
	case DetachMember:
		return detachMember(b, c)
	case nil:
		return b, nil, nil
	}
	return b, nil, apperr.E(apperr.Validation, "Commande inconnue")
}

func addPhase(b Board, c AddPhase) (Board, []Event, error) {
	title := strings.TrimSpace(c.Title)
	if title == "" {
		return b, nil, apperr.E(apperr.Validation, "Le titre de la phase est requis")
	}
	color, err := ParseColor(string(c.Color))
	if err != nil {
		return b, nil, err
	}
	out := b.Clone()
	p := Phase{ProjectID: b.ProjectID, Title: title, Color: color, Tickets: []Ticket{}}
	out.Phases = append(out.Phases, p)
	return out, []Event{PhaseAdded{Phase: p, Order: out.PhaseIDs()}}, nil
}

func renamePhase(b Board, c RenamePhase) (Board, []Event, error) {
	i, ok := b.phaseIndex(c.PhaseID)
	if !ok {
		return b, nil, errPhaseNotFound
	}
	cur := b.Phases[i]
	title := strings.TrimSpace(c.Title)
	if title == "" {
		title = cur.Title
	}
	color := cur.Color
	if c.Color != "" {
		var err error
		if color, err = ParseColor(string(c.Color)); err != nil {
			return b, nil, err
		}
	}
	if title == cur.Title && color == cur.Color {
		return b, nil, nil
	}
	out := b.Clone()
	out.Phases[i].Title = title
	out.Phases[i].Color = color
	return out, []Event{PhaseUpdated{PhaseID: c.PhaseID, Title: title, Color: color}}, nil
}

func deletePhase(b Board, c DeletePhase) (Board, []Event, error) {
	i, ok := b.phaseIndex(c.PhaseID)
	if !ok {
		return b, nil, errPhaseNotFound
	}
	out := b.Clone()
	out.Phases = slices.Delete(out.Phases, i, i+1)
	return out, []Event{PhaseDeleted{PhaseID: c.PhaseID}}, nil
}

func reorderPhase(b Board, c ReorderPhase) (Board, []Event, error) {
	if c.TargetPhaseID == 0 || c.PhaseID == c.TargetPhaseID {
		return b, nil, nil
	}
	from, ok := b.phaseIndex(c.PhaseID)
	if !ok {
		return b, nil, errPhaseNotFound
	}
	to, ok := b.phaseIndex(c.TargetPhaseID)
	if !ok {
		return b, nil, errPhaseNotFound
	}
	out := b.Clone()
	out.Phases = moveItem(out.Phases, from, to)
	return out, []Event{PhasesReordered{Order: out.PhaseIDs()}}, nil
}

func addTicket(b Board, c AddTicket) (Board, []Event, error) {
	title := strings.TrimSpace(c.Title)
	if title == "" {
		return b, nil, apperr.E(apperr.Validation, "Le titre est requis")
	}
	prio, err := ParsePriority(string(c.Priority))
	if err != nil {
		return b, nil, err
	}
	if len(b.Phases) == 0 {
		return b, nil, apperr.E(apperr.Validation, "Le projet n'a aucune phase")
	}
	pi := 0
	if c.PhaseID != 0 {
		var ok bool
		if pi, ok = b.phaseIndex(c.PhaseID); !ok {
			return b, nil, errPhaseNotFound
		}
	}
	out := b.Clone()
	t := Ticket{
		PhaseID:     out.Phases[pi].ID,
		Title:       title,
		Description: strings.TrimSpace(c.Description),
		Priority:    prio,
		Members:     []int64{},
		CreatedAt:   c.CreatedAt,
		Comments:    []Comment{},
	}
	if c.AssigneeID != nil && *c.AssigneeID != 0 {
		v := *c.AssigneeID
		t.AssigneeID = &v
	}
	out.Phases[pi].Tickets = append(out.Phases[pi].Tickets, t)
	return out, []Event{TicketAdded{Ticket: t, Order: out.Phases[pi].TicketIDs()}}, nil
}

func updateTicket(b Board, c UpdateTicket) (Board, []Event, error) {
	pi, ti, ok := b.ticketIndex(c.TicketID)
	if !ok {
		return b, nil, errTicketNotFound
	}
	cur := b.Phases[pi].Tickets[ti]
	next := cur
	if c.Title != nil {
		if title := strings.TrimSpace(*c.Title); title != "" {
			next.Title = title
		}
	}
	if c.Description != nil {
		next.Description = strings.TrimSpace(*c.Description)
	}
	if c.Priority != nil {
		prio, err := ParsePriority(string(*c.Priority))
		if err != nil {
			return b, nil, err
		}
		next.Priority = prio
	}
	if c.AssigneeID != nil {
		if *c.AssigneeID == 0 {
			next.AssigneeID = nil
		} else {
			v := *c.AssigneeID
			next.AssigneeID = &v
		}
	}
	if next.Title == cur.Title && next.Description == cur.Description &&
		next.Priority == cur.Priority && sameAssignee(next.AssigneeID, cur.AssigneeID) {
		return b, nil, nil
	}
	out := b.Clone()
	t := &out.Phases[pi].Tickets[ti]
	t.Title, t.Description, t.Priority, t.AssigneeID = next.Title, next.Description, next.Priority, next.AssigneeID
	return out, []Event{TicketUpdated{Ticket: *t}}, nil
}

func sameAssignee(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func deleteTicket(b Board, c DeleteTicket) (Board, []Event, error) {
	pi, ti, ok := b.ticketIndex(c.TicketID)
	if !ok {
		return b, nil, errTicketNotFound
	}
	out := b.Clone()
	phaseID := out.Phases[pi].ID
	out.Phases[pi].Tickets = slices.Delete(out.Phases[pi].Tickets, ti, ti+1)
	return out, []Event{TicketDeleted{TicketID: c.TicketID, PhaseID: phaseID}}, nil
}

func moveTicket(b Board, c MoveTicket) (Board, []Event, error) {
	if c.TargetPhaseID == 0 && c.TargetTicketID == 0 {
		return b, nil, nil
	}
	if c.TargetTicketID == c.TicketID {
		return b, nil, nil
	}
	spi, sti, ok := b.ticketIndex(c.TicketID)
	if !ok {
		return b, nil, errTicketNotFound
	}

	tpi, tti := -1, -1
	if c.TargetTicketID != 0 {
		if tpi, tti, ok = b.ticketIndex(c.TargetTicketID); !ok {
			return b, nil, errTicketNotFound
		}
		if c.TargetPhaseID != 0 && b.Phases[tpi].ID != c.TargetPhaseID {
			return b, nil, apperr.E(apperr.Validation, "La tâche cible n'appartient pas à cette phase")
		}
	} else if tpi, ok = b.phaseIndex(c.TargetPhaseID); !ok {
		return b, nil, errPhaseNotFound
	}

	if spi == tpi && tti < 0 {
		// already in this phase
		return b, nil, nil
	}

	out := b.Clone()
	src := &out.Phases[spi]
	if spi == tpi {
		src.Tickets = moveItem(src.Tickets, sti, tti)
		return out, []Event{TicketMoved{
			TicketID:    c.TicketID,
			FromPhaseID: src.ID,
			ToPhaseID:   src.ID,
			FromOrder:   src.TicketIDs(),
			ToOrder:     src.TicketIDs(),
		}}, nil
	}

	dst := &out.Phases[tpi]
	t := src.Tickets[sti]
	src.Tickets = slices.Delete(src.Tickets, sti, sti+1)
	t.PhaseID = dst.ID
	if tti < 0 {
		dst.Tickets = append(dst.Tickets, t)
	} else {
		dst.Tickets = slices.Insert(dst.Tickets, tti, t)
	}
	return out, []Event{TicketMoved{
		TicketID:    c.TicketID,
		FromPhaseID: src.ID,
		ToPhaseID:   dst.ID,
		FromOrder:   src.TicketIDs(),
		ToOrder:     dst.TicketIDs(),
	}}, nil
}

func addComment(b Board, c AddComment) (Board, []Event, error) {
	content := strings.TrimSpace(c.Content)
	if content == "" {
		return b, nil, apperr.E(apperr.Validation, "Le contenu est requis")
	}
	pi, ti, ok := b.ticketIndex(c.TicketID)
	if !ok {
		return b, nil, errTicketNotFound
	}
	out := b.Clone()
	t := &out.Phases[pi].Tickets[ti]
	at := c.At.UTC().Truncate(time.Microsecond)
	if n := len(t.Comments); n > 0 {
		// keep the thread strictly chronological
		if last := t.Comments[n-1].CreatedAt; !at.After(last) {
			at = last.Add(time.Microsecond)
		}
	}
	cm := Comment{TicketID: c.TicketID, AuthorID: c.AuthorID, Content: content, CreatedAt: at}
	t.Comments = append(t.Comments, cm)
	return out, []Event{CommentAdded{Comment: cm}}, nil
}

func deleteComment(b Board, c DeleteComment) (Board, []Event, error) {
	pi, ti, ci, ok := b.commentIndex(c.CommentID)
	if !ok {
		return b, nil, errCommentNotFound
	}
	out := b.Clone()
	t := &out.Phases[pi].Tickets[ti]
	t.Comments = slices.Delete(t.Comments, ci, ci+1)
	return out, []Event{CommentDeleted{CommentID: c.CommentID, TicketID: t.ID}}, nil
}

func attachMember(b Board, c AttachMember) (Board, []Event, error) {
	pi, ti, ok := b.ticketIndex(c.TicketID)
	if !ok {
		return b, nil, errTicketNotFound
	}
	if b.Phases[pi].Tickets[ti].hasMember(c.UserID) {
		return b, nil, nil
	}
	out := b.Clone()
	t := &out.Phases[pi].Tickets[ti]
	t.Members = append(t.Members, c.UserID)
	slices.Sort(t.Members)
	return out, []Event{TicketMembersChanged{TicketID: t.ID, Members: slices.Clone(t.Members)}}, nil
}

func detachMember(b Board, c DetachMember) (Board, []Event, error) {
	pi, ti, ok := b.ticketIndex(c.TicketID)
	if !ok {
		return b, nil, errTicketNotFound
	}
	if !b.Phases[pi].Tickets[ti].hasMember(c.UserID) {
		return b, nil, nil
	}
	out := b.Clone()
	t := &out.Phases[pi].Tickets[ti]
	t.Members = slices.DeleteFunc(t.Members, func(id int64) bool { return id == c.UserID })
	return out, []Event{TicketMembersChanged{TicketID: t.ID, Members: slices.Clone(t.Members)}}, nil
}

// moveItem removes the element at from and re-inserts it at to, where to is
// an index into the original slice.
func moveItem[T any](s []T, from, to int) []T {
	item := s[from]
	s = slices.Delete(s, from, from+1)
	return slices.Insert(s, to, item)
}
