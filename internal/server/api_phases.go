package server

import (
	"net/http"

	"devconnect/internal/board"
	"devconnect/internal/store"
)

// phaseProject resolves the {id} phase to its project.
func (a *api) phaseProject(r *http.Request) (phaseID, projectID int64, err error) {
	if phaseID, err = pathID(r, "id"); err != nil {
		return 0, 0, err
	}
	projectID, err = a.store.ProjectOfPhase(r.Context(), phaseID)
	return phaseID, projectID, orNotFound(err, "Phase non trouvée")
}

type phaseRequest struct {
	Title string `json:"title"`
	Color string `json:"color"`
}

func (a *api) handleCreatePhase(w http.ResponseWriter, r *http.Request, u store.User) {
	id, err := pathID(r, "id")
	if err != nil {
		a.writeErr(w, r, "create phase", err)
		return
	}
	var req phaseRequest
	if err := readJSON(w, r, &req); err != nil {
		a.writeErr(w, r, "create phase", err)
		return
	}
	if err := a.ensureProject(r, id); err != nil {
		a.writeErr(w, r, "create phase", err)
		return
	}
	c, err := a.dispatch(r.Context(), u, id, board.AddPhase{Title: req.Title, Color: board.Color(req.Color)})
	if err != nil {
		a.writeErr(w, r, "create phase", err)
		return
	}
	p, _ := c.Board.Phase(c.NewID)
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Phase créée avec succès", "phase": p})
}

func (a *api) handleUpdatePhase(w http.ResponseWriter, r *http.Request, u store.User) {
	phaseID, projectID, err := a.phaseProject(r)
	if err != nil {
		a.writeErr(w, r, "update phase", err)
		return
	}
	var req phaseRequest
	if err := readJSON(w, r, &req); err != nil {
		a.writeErr(w, r, "update phase", err)
		return
	}
	c, err := a.dispatch(r.Context(), u, projectID,
		board.RenamePhase{PhaseID: phaseID, Title: req.Title, Color: board.Color(req.Color)})
	if err != nil {
		a.writeErr(w, r, "update phase", err)
		return
	}
	p, _ := c.Board.Phase(phaseID)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Phase mise à jour", "phase": p})
}

func (a *api) handleDeletePhase(w http.ResponseWriter, r *http.Request, u store.User) {
	phaseID, projectID, err := a.phaseProject(r)
	if err != nil {
		a.writeErr(w, r, "delete phase", err)
		return
	}
	if _, err := a.dispatch(r.Context(), u, projectID, board.DeletePhase{PhaseID: phaseID}); err != nil {
		a.writeErr(w, r, "delete phase", err)
		return
	}
	writeMessage(w, http.StatusOK, "Phase supprimée avec succès")
}

// handleMovePhase drops the phase onto target_phase_id, taking its place.
func (a *api) handleMovePhase(w http.ResponseWriter, r *http.Request, u store.User) {
	phaseID, projectID, err := a.phaseProject(r)
	if err != nil {
		a.writeErr(w, r, "move phase", err)
		return
	}
	var req struct {
		TargetPhaseID int64 `json:"target_phase_id"`
	}
	if err := readJSON(w, r, &req); err != nil {
		a.writeErr(w, r, "move phase", err)
		return
	}
	start := func(b board.Board) (board.Drag, error) { return board.StartPhaseDrag(b, phaseID) }
	c, err := a.drop(r.Context(), u, projectID, start, board.DropTarget{PhaseID: req.TargetPhaseID})
	if err != nil {
		a.writeErr(w, r, "move phase", err)
		return
	}
	writeJSON(w, http.StatusOK, viewBoard(c.Board))
}
