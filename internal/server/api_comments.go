package server

import (
	"context"
	"net/http"

	"devconnect/internal/access"
	"devconnect/internal/apperr"
	"devconnect/internal/board"
	"devconnect/internal/store"
)

type commentView struct {
	board.Comment
	Username string `json:"username"`
}

func (a *api) viewComments(ctx context.Context, cs []board.Comment) ([]commentView, error) {
	ids := make([]int64, 0, len(cs))
	for _, c := range cs {
		ids = append(ids, c.AuthorID)
	}
	names, err := a.store.Usernames(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]commentView, len(cs))
	for i, c := range cs {
		out[i] = commentView{Comment: c, Username: names[c.AuthorID]}
	}
	return out, nil
}

func (a *api) handleCreateComment(w http.ResponseWriter, r *http.Request, u store.User) {
	var req struct {
		Content string `json:"content"`
		TaskID  int64  `json:"task_id"`
	}
	if err := readJSON(w, r, &req); err != nil {
		a.writeErr(w, r, "create comment", err)
		return
	}
	if req.TaskID <= 0 {
		a.writeErr(w, r, "create comment", apperr.E(apperr.Validation, "task_id est requis"))
		return
	}
	projectID, err := a.store.ProjectOfTask(r.Context(), req.TaskID)
	if err != nil {
		a.writeErr(w, r, "create comment", orNotFound(err, "Tâche non trouvée"))
		return
	}
	c, err := a.dispatch(r.Context(), u, projectID, board.AddComment{TicketID: req.TaskID, Content: req.Content})
	if err != nil {
		a.writeErr(w, r, "create comment", err)
		return
	}
	cm, ok := c.Board.Comment(c.NewID)
	if !ok {
		a.writeErr(w, r, "create comment", apperr.E(apperr.NotFound, "Commentaire non trouvé"))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Commentaire ajouté avec succès",
		"comment": commentView{Comment: cm, Username: u.Username},
	})
}

// handleTaskComments lists a task's thread, oldest first.
func (a *api) handleTaskComments(w http.ResponseWriter, r *http.Request, u store.User) {
	taskID, err := pathID(r, "taskId")
	if err != nil {
		a.writeErr(w, r, "task comments", err)
		return
	}
	projectID, err := a.store.ProjectOfTask(r.Context(), taskID)
	if err != nil {
		a.writeErr(w, r, "task comments", orNotFound(err, "Tâche non trouvée"))
		return
	}
	if _, err := a.authz.Authorize(r.Context(), projectID, u.ID, access.ViewProject); err != nil {
		a.writeErr(w, r, "task comments", err)
		return
	}
	b, err := a.loadBoard(r.Context(), projectID, "Tâche non trouvée")
	if err != nil {
		a.writeErr(w, r, "task comments", err)
		return
	}
	t, ok := b.Ticket(taskID)
	if !ok {
		a.writeErr(w, r, "task comments", apperr.E(apperr.NotFound, "Tâche non trouvée"))
		return
	}
	out, err := a.viewComments(r.Context(), t.Comments)
	if err != nil {
		a.writeErr(w, r, "task comments", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) commentProject(r *http.Request) (commentID, projectID int64, err error) {
	if commentID, err = pathID(r, "id"); err != nil {
		return 0, 0, err
	}
	projectID, err = a.store.ProjectOfComment(r.Context(), commentID)
	return commentID, projectID, orNotFound(err, "Commentaire non trouvé")
}

func (a *api) handleGetComment(w http.ResponseWriter, r *http.Request, u store.User) {
	commentID, projectID, err := a.commentProject(r)
	if err != nil {
		a.writeErr(w, r, "get comment", err)
		return
	}
	if _, err := a.authz.Authorize(r.Context(), projectID, u.ID, access.ViewProject); err != nil {
		a.writeErr(w, r, "get comment", err)
		return
	}
	b, err := a.loadBoard(r.Context(), projectID, "Commentaire non trouvé")
	if err != nil {
		a.writeErr(w, r, "get comment", err)
		return
	}
	cm, ok := b.Comment(commentID)
	if !ok {
		a.writeErr(w, r, "get comment", apperr.E(apperr.NotFound, "Commentaire non trouvé"))
		return
	}
	views, err := a.viewComments(r.Context(), []board.Comment{cm})
	if err != nil {
		a.writeErr(w, r, "get comment", err)
		return
	}
	writeJSON(w, http.StatusOK, views[0])
}

// handleDeleteComment lets the author or a project admin remove a comment.
func (a *api) handleDeleteComment(w http.ResponseWriter, r *http.Request, u store.User) {
	commentID, projectID, err := a.commentProject(r)
	if err != nil {
		a.writeErr(w, r, "delete comment", err)
		return
	}
	if _, err := a.dispatch(r.Context(), u, projectID, board.DeleteComment{CommentID: commentID}); err != nil {
		a.writeErr(w, r, "delete comment", err)
		return
	}
	writeMessage(w, http.StatusOK, "Commentaire supprimé avec succès")
}
