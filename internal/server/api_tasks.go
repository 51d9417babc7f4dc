package server

import (
	"net/http"

	"devconnect/internal/access"
	"devconnect/internal/apperr"
	"devconnect/internal/board"
	"devconnect/internal/store"
)

// taskView is a ticket as the task endpoints return it: flat, with its
// project and the title of its phase as status.
type taskView struct {
	board.Ticket
	ProjectID int64  `json:"project_id"`
	Status    string `json:"status"`
}

func viewTask(b board.Board, t board.Ticket) taskView {
	v := taskView{Ticket: t, ProjectID: b.ProjectID}
	if p, ok := b.Phase(t.PhaseID); ok {
		v.Status = p.Title
	}
	return v
}

func findTask(b board.Board, id int64) (taskView, error) {
	t, ok := b.Ticket(id)
	if !ok {
		return taskView{}, apperr.E(apperr.NotFound, "Tâche non trouvée")
	}
	return viewTask(b, t), nil
}

func (a *api) taskProject(r *http.Request) (taskID, projectID int64, err error) {
	if taskID, err = pathID(r, "id"); err != nil {
		return 0, 0, err
	}
	projectID, err = a.store.ProjectOfTask(r.Context(), taskID)
	return taskID, projectID, orNotFound(err, "Tâche non trouvée")
}

func (a *api) handleCreateTask(w http.ResponseWriter, r *http.Request, u store.User) {
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Priority    string `json:"priority"`
		ProjectID   int64  `json:"project_id"`
		PhaseID     int64  `json:"phase_id"`
		AssignedTo  *int64 `json:"assigned_to"`
	}
	if err := readJSON(w, r, &req); err != nil {
		a.writeErr(w, r, "create task", err)
		return
	}
	if req.ProjectID <= 0 {
		a.writeErr(w, r, "create task", apperr.E(apperr.Validation, "project_id est requis"))
		return
	}
	if err := a.ensureProject(r, req.ProjectID); err != nil {
		a.writeErr(w, r, "create task", err)
		return
	}
	c, err := a.dispatch(r.Context(), u, req.ProjectID, board.AddTicket{
		PhaseID:     req.PhaseID,
		Title:       req.Title,
		Description: req.Description,
		Priority:    board.Priority(req.Priority),
		AssigneeID:  req.AssignedTo,
	})
	if err != nil {
		a.writeErr(w, r, "create task", err)
		return
	}
	t, err := findTask(c.Board, c.NewID)
	if err != nil {
		a.writeErr(w, r, "create task", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Tâche créée avec succès", "task": t})
}

func (a *api) handleProjectTasks(w http.ResponseWriter, r *http.Request, u store.User) {
	id, err := pathID(r, "projectId")
	if err != nil {
		a.writeErr(w, r, "project tasks", err)
		return
	}
	if err := a.ensureProject(r, id); err != nil {
		a.writeErr(w, r, "project tasks", err)
		return
	}
	if _, err := a.authz.Authorize(r.Context(), id, u.ID, access.ViewProject); err != nil {
		a.writeErr(w, r, "project tasks", err)
		return
	}
	b, err := a.loadBoard(r.Context(), id, "Projet non trouvé")
	if err != nil {
		a.writeErr(w, r, "project tasks", err)
		return
	}
	out := []taskView{}
	for _, t := range b.Tickets() {
		out = append(out, viewTask(b, t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) handleGetTask(w http.ResponseWriter, r *http.Request, u store.User) {
	taskID, projectID, err := a.taskProject(r)
	if err != nil {
		a.writeErr(w, r, "get task", err)
		return
	}
	if _, err := a.authz.Authorize(r.Context(), projectID, u.ID, access.ViewProject); err != nil {
		a.writeErr(w, r, "get task", err)
		return
	}
	b, err := a.loadBoard(r.Context(), projectID, "Tâche non trouvée")
	if err != nil {
		a.writeErr(w, r, "get task", err)
		return
	}
	t, err := findTask(b, taskID)
	if err != nil {
		a.writeErr(w, r, "get task", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleUpdateTask patches the task fields. A phase_id different from the
// current phase also moves the task to the end of that phase.
func (a *api) handleUpdateTask(w http.ResponseWriter, r *http.Request, u store.User) {
	taskID, projectID, err := a.taskProject(r)
	if err != nil {
		a.writeErr(w, r, "update task", err)
		return
	}
	var req struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		Priority    *string `json:"priority"`
		AssignedTo  *int64  `json:"assigned_to"`
		PhaseID     int64   `json:"phase_id"`
	}
	if err := readJSON(w, r, &req); err != nil {
		a.writeErr(w, r, "update task", err)
		return
	}
	cmd := board.UpdateTicket{TicketID: taskID, Title: req.Title, Description: req.Description, AssigneeID: req.AssignedTo}
	if req.Priority != nil {
		p := board.Priority(*req.Priority)
		cmd.Priority = &p
	}
	cmds := []board.Command{cmd}
	if req.PhaseID != 0 {
		cmds = append(cmds, board.MoveTicket{TicketID: taskID, TargetPhaseID: req.PhaseID})
	}
	c, err := a.dispatch(r.Context(), u, projectID, cmds...)
	if err != nil {
		a.writeErr(w, r, "update task", err)
		return
	}
	t, err := findTask(c.Board, taskID)
	if err != nil {
		a.writeErr(w, r, "update task", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Tâche mise à jour", "task": t})
}

func (a *api) handleDeleteTask(w http.ResponseWriter, r *http.Request, u store.User) {
	taskID, projectID, err := a.taskProject(r)
	if err != nil {
		a.writeErr(w, r, "delete task", err)
		return
	}
	if _, err := a.dispatch(r.Context(), u, projectID, board.DeleteTicket{TicketID: taskID}); err != nil {
		a.writeErr(w, r, "delete task", err)
		return
	}
	writeMessage(w, http.StatusOK, "Tâche supprimée avec succès")
}

// handleMoveTask drops the task over target_task_id, or onto the empty
// space of target_phase_id when no task is given.
func (a *api) handleMoveTask(w http.ResponseWriter, r *http.Request, u store.User) {
	taskID, projectID, err := a.taskProject(r)
	if err != nil {
		a.writeErr(w, r, "move task", err)
		return
	}
	var req struct {
		TargetPhaseID int64 `json:"target_phase_id"`
		TargetTaskID  int64 `json:"target_task_id"`
	}
	if err := readJSON(w, r, &req); err != nil {
		a.writeErr(w, r, "move task", err)
		return
	}
	start := func(b board.Board) (board.Drag, error) { return board.StartTicketDrag(b, taskID) }
	target := board.DropTarget{PhaseID: req.TargetPhaseID, TicketID: req.TargetTaskID}
	c, err := a.drop(r.Context(), u, projectID, start, target)
	if err != nil {
		a.writeErr(w, r, "move task", err)
		return
	}
	writeJSON(w, http.StatusOK, viewBoard(c.Board))
}

func (a *api) handleAttachTaskMember(w http.ResponseWriter, r *http.Request, u store.User) {
	taskID, projectID, err := a.taskProject(r)
	if err != nil {
		a.writeErr(w, r, "attach member", err)
		return
	}
	var req struct {
		UserID int64 `json:"user_id"`
	}
	if err := readJSON(w, r, &req); err != nil {
		a.writeErr(w, r, "attach member", err)
		return
	}
	if req.UserID <= 0 {
		a.writeErr(w, r, "attach member", apperr.E(apperr.Validation, "user_id est requis"))
		return
	}
	c, err := a.dispatch(r.Context(), u, projectID, board.AttachMember{TicketID: taskID, UserID: req.UserID})
	if err != nil {
		a.writeErr(w, r, "attach member", err)
		return
	}
	t, err := findTask(c.Board, taskID)
	if err != nil {
		a.writeErr(w, r, "attach member", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Membre ajouté à la tâche", "task": t})
}

func (a *api) handleDetachTaskMember(w http.ResponseWriter, r *http.Request, u store.User) {
	taskID, projectID, err := a.taskProject(r)
	if err != nil {
		a.writeErr(w, r, "detach member", err)
		return
	}
	userID, err := pathID(r, "userId")
	if err != nil {
		a.writeErr(w, r, "detach member", err)
		return
	}
	c, err := a.dispatch(r.Context(), u, projectID, board.DetachMember{TicketID: taskID, UserID: userID})
	if err != nil {
		a.writeErr(w, r, "detach member", err)
		return
	}
	t, err := findTask(c.Board, taskID)
	if err != nil {
		a.writeErr(w, r, "detach member", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Membre retiré de la tâche", "task": t})
}
