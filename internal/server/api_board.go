package server

import (
	"context"
	"net/http"

	"devconnect/internal/access"
	"devconnect/internal/apperr"
	"devconnect/internal/board"
	"devconnect/internal/store"
)

// commandAction is the permission a board command needs.
func commandAction(cmd board.Command) access.Action {
	switch cmd.(type) {
	case board.AddPhase:
		return access.CreatePhase
	case board.RenamePhase:
		return access.UpdatePhase
	case board.DeletePhase:
		return access.DeletePhase
	case board.ReorderPhase:
		return access.MovePhase
	case board.AddTicket:
		return access.CreateTask
	case board.DeleteTicket:
		return access.DeleteTask
	case board.MoveTicket:
		return access.MoveTask
	case board.AddComment:
		return access.CreateComment
	case board.DeleteComment:
		return access.DeleteComment
	}
	// UpdateTicket, AttachMember, DetachMember
	return access.UpdateTask
}

// stamp fills in the actor and clock on commands that record them.
func (a *api) stamp(cmd board.Command, actor store.User) board.Command {
	switch c := cmd.(type) {
	case board.AddTicket:
		c.CreatedAt = a.now()
		return c
	case board.AddComment:
		c.AuthorID = actor.ID
		c.At = a.now()
		return c
	}
	return cmd
}

// dispatch runs board commands for actor as one mutation: authorize, load,
// apply each in turn to the same snapshot, persist, publish. Nothing is
// persisted when any command fails or when none of them changes the board.
func (a *api) dispatch(ctx context.Context, actor store.User, projectID int64, cmds ...board.Command) (store.Commit, error) {
	roles := make([]access.Role, len(cmds))
	for i, cmd := range cmds {
		cmds[i] = a.stamp(cmd, actor)
		role, err := a.authz.Authorize(ctx, projectID, actor.ID, commandAction(cmds[i]))
		if err != nil {
			return store.Commit{}, err
		}
		roles[i] = role
	}
	b, err := a.loadBoard(ctx, projectID, "Projet non trouvé")
	if err != nil {
		return store.Commit{}, err
	}
	var events []board.Event
	for i, cmd := range cmds {
		if err := a.checkCommand(ctx, b, roles[i], actor, cmd); err != nil {
			return store.Commit{}, err
		}
		next, evs, err := board.Apply(b, cmd)
		if err != nil {
			return store.Commit{}, err
		}
		b = next
		events = append(events, evs...)
	}
	if len(events) == 0 {
		return store.Commit{Board: b}, nil
	}
	c, err := a.store.Commit(ctx, projectID, events)
	if err != nil {
		return store.Commit{}, err
	}
	a.log.Info("board command", "project_id", projectID, "user_id", actor.ID, "events", len(events))
	a.bus.publishCommit(projectID, actor.ID, events, c)
	return c, nil
}

// loadBoard loads the project's board. A project that vanished since the
// caller looked it up answers NotFound with the endpoint's own message.
func (a *api) loadBoard(ctx context.Context, projectID int64, missing string) (board.Board, error) {
	b, err := a.store.LoadBoard(ctx, projectID)
	return b, orNotFound(err, missing)
}

// checkCommand enforces the rules that need more than the role tag.
func (a *api) checkCommand(ctx context.Context, b board.Board, role access.Role, actor store.User, cmd board.Command) error {
	switch c := cmd.(type) {
	case board.DeleteComment:
		cm, ok := b.Comment(c.CommentID)
		if !ok {
			return apperr.E(apperr.NotFound, "Commentaire non trouvé")
		}
		if !access.CanDeleteComment(role, actor.ID, cm.AuthorID) {
			return apperr.E(apperr.Authorization, "Non autorisé")
		}
	case board.AttachMember:
		return a.requireProjectMember(ctx, b.ProjectID, c.UserID)
	case board.AddTicket:
		if c.AssigneeID != nil && *c.AssigneeID != 0 {
			return a.requireProjectMember(ctx, b.ProjectID, *c.AssigneeID)
		}
	case board.UpdateTicket:
		if c.AssigneeID != nil && *c.AssigneeID != 0 {
			return a.requireProjectMember(ctx, b.ProjectID, *c.AssigneeID)
		}
	}
	return nil
}

func (a *api) requireProjectMember(ctx context.Context, projectID, userID int64) error {
	role, err := a.authz.RoleOf(ctx, projectID, userID)
	if err != nil {
		return err
	}
	if role == access.None {
		return apperr.E(apperr.Validation, "L'utilisateur n'est pas membre du projet")
	}
	return nil
}

type boardView struct {
	board.Board
	Stats board.Stats `json:"stats"`
}

func viewBoard(b board.Board) boardView { return boardView{Board: b, Stats: board.Summary(b)} }

func (a *api) handleGetBoard(w http.ResponseWriter, r *http.Request, u store.User) {
	id, err := pathID(r, "id")
	if err != nil {
		a.writeErr(w, r, "get board", err)
		return
	}
	if err := a.ensureProject(r, id); err != nil {
		a.writeErr(w, r, "get board", err)
		return
	}
	if _, err := a.authz.Authorize(r.Context(), id, u.ID, access.ViewProject); err != nil {
		a.writeErr(w, r, "get board", err)
		return
	}
	b, err := a.loadBoard(r.Context(), id, "Projet non trouvé")
	if err != nil {
		a.writeErr(w, r, "get board", err)
		return
	}
	writeJSON(w, http.StatusOK, viewBoard(b))
}

// commandRequest is the wire form of a board command. Type selects the
// command; only the fields it uses are read.
type commandRequest struct {
	Type          string  `json:"type"`
	PhaseID       int64   `json:"phase_id"`
	TaskID        int64   `json:"task_id"`
	CommentID     int64   `json:"comment_id"`
	UserID        int64   `json:"user_id"`
	TargetPhaseID int64   `json:"target_phase_id"`
	TargetTaskID  int64   `json:"target_task_id"`
	Title         *string `json:"title"`
	Description   *string `json:"description"`
	Color         string  `json:"color"`
	Priority      *string `json:"priority"`
	AssignedTo    *int64  `json:"assigned_to"`
	Content       string  `json:"content"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (req commandRequest) command() (board.Command, error) {
	switch req.Type {
	case "phase.add":
		return board.AddPhase{Title: deref(req.Title), Color: board.Color(req.Color)}, nil
	case "phase.rename":
		return board.RenamePhase{PhaseID: req.PhaseID, Title: deref(req.Title), Color: board.Color(req.Color)}, nil
	case "phase.delete":
		return board.DeletePhase{PhaseID: req.PhaseID}, nil
	case "phase.reorder":
		return board.ReorderPhase{PhaseID: req.PhaseID, TargetPhaseID: req.TargetPhaseID}, nil
	case "task.add":
		return board.AddTicket{
			PhaseID:     req.PhaseID,
			Title:       deref(req.Title),
			Description: deref(req.Description),
			Priority:    board.Priority(deref(req.Priority)),
			AssigneeID:  req.AssignedTo,
		}, nil
	case "task.update":
		c := board.UpdateTicket{TicketID: req.TaskID, Title: req.Title, Description: req.Description, AssigneeID: req.AssignedTo}
		if req.Priority != nil {
			p := board.Priority(*req.Priority)
			c.Priority = &p
		}
		return c, nil
	case "task.delete":
		return board.DeleteTicket{TicketID: req.TaskID}, nil
	case "task.move":
		return board.MoveTicket{TicketID: req.TaskID, TargetPhaseID: req.TargetPhaseID, TargetTicketID: req.TargetTaskID}, nil
	case "comment.add":
		return board.AddComment{TicketID: req.TaskID, Content: req.Content}, nil
	case "comment.delete":
		return board.DeleteComment{CommentID: req.CommentID}, nil
	case "task.member.add":
		return board.AttachMember{TicketID: req.TaskID, UserID: req.UserID}, nil
	case "task.member.remove":
		return board.DetachMember{TicketID: req.TaskID, UserID: req.UserID}, nil
	}
	return nil, apperr.E(apperr.Validation, "Commande inconnue")
}

func (a *api) handleBoardCommand(w http.ResponseWriter, r *http.Request, u store.User) {
	id, err := pathID(r, "id")
	if err != nil {
		a.writeErr(w, r, "board command", err)
		return
	}
	var req commandRequest
	if err := readJSON(w, r, &req); err != nil {
		a.writeErr(w, r, "board command", err)
		return
	}
	cmd, err := req.command()
	if err != nil {
		a.writeErr(w, r, "board command", err)
		return
	}
	if err := a.ensureProject(r, id); err != nil {
		a.writeErr(w, r, "board command", err)
		return
	}
	c, err := a.dispatch(r.Context(), u, id, cmd)
	if err != nil {
		a.writeErr(w, r, "board command", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": c.NewID, "board": viewBoard(c.Board)})
}

// drop resolves a drag gesture against the current board and dispatches the
// resulting command. A drop that changes nothing returns the board as is.
func (a *api) drop(ctx context.Context, actor store.User, projectID int64,
	start func(board.Board) (board.Drag, error), target board.DropTarget) (store.Commit, error) {
	if _, err := a.authz.Authorize(ctx, projectID, actor.ID, access.ViewProject); err != nil {
		return store.Commit{}, err
	}
	b, err := a.loadBoard(ctx, projectID, "Projet non trouvé")
	if err != nil {
		return store.Commit{}, err
	}
	d, err := start(b)
	if err != nil {
		return store.Commit{}, err
	}
	cmd, ok := d.Drop(target)
	if !ok {
		return store.Commit{Board: b}, nil
	}
	return a.dispatch(ctx, actor, projectID, cmd)
}
