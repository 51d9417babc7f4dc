package server

import (
	"errors"
	"net/http"
	"strings"

	"devconnect/internal/access"
	"devconnect/internal/apperr"
	"devconnect/internal/store"
)

// ensureProject answers 404 before any membership check, so callers can
// tell a deleted project from a forbidden one.
func (a *api) ensureProject(r *http.Request, id int64) error {
	_, err := a.store.ProjectByID(r.Context(), id)
	return orNotFound(err, "Projet non trouvé")
}

func (a *api) handleCreateProject(w http.ResponseWriter, r *http.Request, u store.User) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := readJSON(w, r, &req); err != nil {
		a.writeErr(w, r, "create project", err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		a.writeErr(w, r, "create project", apperr.E(apperr.Validation, "Le nom du projet est requis"))
		return
	}
	p, err := a.store.CreateProject(r.Context(), u.ID, name, strings.TrimSpace(req.Description))
	if err != nil {
		a.writeErr(w, r, "create project", err)
		return
	}
	a.log.Info("project created", "project_id", p.ID, "owner_id", u.ID)
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Projet créé avec succès", "project": p})
}

func (a *api) handleListProjects(w http.ResponseWriter, r *http.Request, u store.User) {
	items, err := a.store.ProjectsForUser(r.Context(), u.ID)
	if err != nil {
		a.writeErr(w, r, "list projects", err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

type projectDetail struct {
	store.Project
	Members  []store.Member `json:"members"`
	UserRole access.Role    `json:"userRole"`
}

func (a *api) handleGetProject(w http.ResponseWriter, r *http.Request, u store.User) {
	id, err := pathID(r, "id")
	if err != nil {
		a.writeErr(w, r, "get project", err)
		return
	}
	p, err := a.store.ProjectByID(r.Context(), id)
	if err != nil {
		a.writeErr(w, r, "get project", orNotFound(err, "Projet non trouvé"))
		return
	}
	role, err := a.authz.Authorize(r.Context(), id, u.ID, access.ViewProject)
	if err != nil {
		a.writeErr(w, r, "get project", err)
		return
	}
	members, err := a.store.Members(r.Context(), id)
	if err != nil {
		a.writeErr(w, r, "project members", err)
		return
	}
	writeJSON(w, http.StatusOK, projectDetail{Project: p, Members: members, UserRole: role})
}

func (a *api) handleUpdateProject(w http.ResponseWriter, r *http.Request, u store.User) {
	id, err := pathID(r, "id")
	if err != nil {
		a.writeErr(w, r, "update project", err)
		return
	}
	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
	}
	if err := readJSON(w, r, &req); err != nil {
		a.writeErr(w, r, "update project", err)
		return
	}
	cur, err := a.store.ProjectByID(r.Context(), id)
	if err != nil {
		a.writeErr(w, r, "update project", orNotFound(err, "Projet non trouvé"))
		return
	}
	if _, err := a.authz.Authorize(r.Context(), id, u.ID, access.UpdateProject); err != nil {
		a.writeErr(w, r, "update project", err)
		return
	}
	name, desc := cur.Name, cur.Description
	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		desc = strings.TrimSpace(*req.Description)
	}
	p, err := a.store.UpdateProject(r.Context(), id, name, desc)
	if err != nil {
		a.writeErr(w, r, "update project", orNotFound(err, "Projet non trouvé"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Projet mis à jour", "project": p})
}

func (a *api) handleDeleteProject(w http.ResponseWriter, r *http.Request, u store.User) {
	id, err := pathID(r, "id")
	if err != nil {
		a.writeErr(w, r, "delete project", err)
		return
	}
	if err := a.ensureProject(r, id); err != nil {
		a.writeErr(w, r, "delete project", err)
		return
	}
	if _, err := a.authz.Authorize(r.Context(), id, u.ID, access.DeleteProject); err != nil {
		a.writeErr(w, r, "delete project", err)
		return
	}
	if err := a.store.DeleteProject(r.Context(), id); err != nil {
		a.writeErr(w, r, "delete project", orNotFound(err, "Projet non trouvé"))
		return
	}
	a.log.Info("project deleted", "project_id", id, "user_id", u.ID)
	a.bus.Publish(Event{Type: "project.deleted", ProjectID: id, ActorID: u.ID})
	writeMessage(w, http.StatusOK, "Projet supprimé avec succès")
}

// memberTags resolves the role/title pair of a membership request. The
// role defaults to member, or admin when only the Admin title is given, and
// the title defaults from the role.
func memberTags(roleIn, titleIn string) (access.Role, access.Title, error) {
	var title access.Title
	if strings.TrimSpace(titleIn) != "" {
		t, ok := access.ParseTitle(titleIn)
		if !ok {
			return access.None, "", apperr.E(apperr.Validation, "Titre invalide")
		}
		title = t
	}
	role := access.Member
	if strings.TrimSpace(roleIn) != "" {
		r, ok := access.ParseRole(roleIn)
		if !ok {
			return access.None, "", apperr.E(apperr.Validation, "Rôle invalide")
		}
		role = r
	} else if title == access.TitleAdmin {
		role = access.Admin
	}
	if title == "" {
		title = access.DefaultTitle(role)
	}
	return role, title, nil
}

// authorizeMembers runs the shared prologue of the member endpoints.
func (a *api) authorizeMembers(r *http.Request, u store.User) (int64, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return 0, err
	}
	if err := a.ensureProject(r, id); err != nil {
		return 0, err
	}
	_, err = a.authz.Authorize(r.Context(), id, u.ID, access.ManageMembers)
	return id, err
}

func (a *api) handleAddMember(w http.ResponseWriter, r *http.Request, u store.User) {
	id, err := a.authorizeMembers(r, u)
	if err != nil {
		a.writeErr(w, r, "add member", err)
		return
	}
	var req struct {
		UserID int64  `json:"user_id"`
		Role   string `json:"role"`
		Title  string `json:"title"`
	}
	if err := readJSON(w, r, &req); err != nil {
		a.writeErr(w, r, "add member", err)
		return
	}
	if req.UserID <= 0 {
		a.writeErr(w, r, "add member", apperr.E(apperr.Validation, "user_id est requis"))
		return
	}
	role, title, err := memberTags(req.Role, req.Title)
	if err != nil {
		a.writeErr(w, r, "add member", err)
		return
	}
	target, err := a.store.UserByID(r.Context(), req.UserID)
	if err != nil {
		a.writeErr(w, r, "add member", orNotFound(err, "Utilisateur non trouvé"))
		return
	}
	err = a.store.AddMember(r.Context(), id, target.ID, role, title)
	if errors.Is(err, store.ErrConflict) {
		a.writeErr(w, r, "add member", apperr.Wrap(apperr.Conflict, "Cet utilisateur est déjà membre du projet", err))
		return
	}
	if err != nil {
		a.writeErr(w, r, "add member", err)
		return
	}
	m := store.Member{UserID: target.ID, Username: target.Username, Email: target.Email, Role: role, Title: title}
	a.bus.Publish(Event{Type: "member.added", ProjectID: id, ActorID: u.ID, Payload: m})
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Membre ajouté avec succès", "member": m})
}

func (a *api) handleUpdateMember(w http.ResponseWriter, r *http.Request, u store.User) {
	id, err := a.authorizeMembers(r, u)
	if err != nil {
		a.writeErr(w, r, "update member", err)
		return
	}
	userID, err := pathID(r, "userId")
	if err != nil {
		a.writeErr(w, r, "update member", err)
		return
	}
	var req struct {
		Role  string `json:"role"`
		Title string `json:"title"`
	}
	if err := readJSON(w, r, &req); err != nil {
		a.writeErr(w, r, "update member", err)
		return
	}
	members, err := a.store.Members(r.Context(), id)
	if err != nil {
		a.writeErr(w, r, "update member", err)
		return
	}
	cur, ok := findMember(members, userID)
	if !ok {
		a.writeErr(w, r, "update member", apperr.E(apperr.NotFound, "Membre non trouvé"))
		return
	}
	// A new role without a title resets the title to the role's default.
	roleIn, titleIn := strings.TrimSpace(req.Role), strings.TrimSpace(req.Title)
	if roleIn == "" {
		roleIn = string(cur.Role)
		if titleIn == "" {
			titleIn = string(cur.Title)
		}
	}
	role, title, err := memberTags(roleIn, titleIn)
	if err != nil {
		a.writeErr(w, r, "update member", err)
		return
	}
	if err := access.EnsureAdminRemains(memberships(members), userID, role); err != nil {
		a.writeErr(w, r, "update member", err)
		return
	}
	if err := a.store.UpdateMember(r.Context(), id, userID, role, title); err != nil {
		a.writeErr(w, r, "update member", orNotFound(err, "Membre non trouvé"))
		return
	}
	cur.Role, cur.Title = role, title
	a.bus.Publish(Event{Type: "member.updated", ProjectID: id, ActorID: u.ID, Payload: cur})
	writeJSON(w, http.StatusOK, map[string]any{"message": "Rôle mis à jour avec succès", "member": cur})
}

func (a *api) handleRemoveMember(w http.ResponseWriter, r *http.Request, u store.User) {
	id, err := a.authorizeMembers(r, u)
	if err != nil {
		a.writeErr(w, r, "remove member", err)
		return
	}
	userID, err := pathID(r, "userId")
	if err != nil {
		a.writeErr(w, r, "remove member", err)
		return
	}
	members, err := a.store.Members(r.Context(), id)
	if err != nil {
		a.writeErr(w, r, "remove member", err)
		return
	}
	if _, ok := findMember(members, userID); !ok {
		a.writeErr(w, r, "remove member", apperr.E(apperr.NotFound, "Membre non trouvé"))
		return
	}
	if err := access.EnsureAdminRemains(memberships(members), userID, access.None); err != nil {
		a.writeErr(w, r, "remove member", err)
		return
	}
	if err := a.store.RemoveMember(r.Context(), id, userID); err != nil {
		a.writeErr(w, r, "remove member", orNotFound(err, "Membre non trouvé"))
		return
	}
	a.bus.Publish(Event{Type: "member.removed", ProjectID: id, ActorID: u.ID, Payload: map[string]int64{"user_id": userID}})
	// the user also left every task of the project
	if b, err := a.store.LoadBoard(r.Context(), id); err == nil {
		a.bus.Publish(Event{Type: "board.reloaded", ProjectID: id, ActorID: u.ID, Payload: viewBoard(b)})
	}
	writeMessage(w, http.StatusOK, "Membre retiré avec succès")
}

func findMember(members []store.Member, userID int64) (store.Member, bool) {
	for _, m := range members {
		if m.UserID == userID {
			return m, true
		}
	}
	return store.Member{}, false
}

func memberships(members []store.Member) []access.Membership {
	out := make([]access.Membership, len(members))
	for i, m := range members {
		out[i] = access.Membership{UserID: m.UserID, Role: m.Role}
	}
	return out
}
