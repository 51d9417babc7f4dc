package server

import (
	"context"
	"net/http"

	"devconnect/internal/access"
	"devconnect/internal/apperr"
	"devconnect/internal/store"
)

func (a *api) handleListUsers(w http.ResponseWriter, r *http.Request, _ store.User) {
	users, err := a.store.ListUsers(r.Context())
	if err != nil {
		a.writeErr(w, r, "list users", err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (a *api) handleGetUser(w http.ResponseWriter, r *http.Request, _ store.User) {
	id, err := pathID(r, "id")
	if err != nil {
		a.writeErr(w, r, "get user", err)
		return
	}
	u, err := a.store.UserByID(r.Context(), id)
	if err != nil {
		a.writeErr(w, r, "get user", orNotFound(err, "Utilisateur non trouvé"))
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *api) handleUpdateUser(w http.ResponseWriter, r *http.Request, actor store.User) {
	id, err := pathID(r, "id")
	if err != nil {
		a.writeErr(w, r, "update user", err)
		return
	}
	a.updateUser(w, r, actor, id)
}

// handleDeleteUser only lets users delete their own account.
func (a *api) handleDeleteUser(w http.ResponseWriter, r *http.Request, actor store.User) {
	id, err := pathID(r, "id")
	if err != nil {
		a.writeErr(w, r, "delete user", err)
		return
	}
	if _, err := a.store.UserByID(r.Context(), id); err != nil {
		a.writeErr(w, r, "delete user", orNotFound(err, "Utilisateur non trouvé"))
		return
	}
	if actor.ID != id {
		a.writeErr(w, r, "delete user", apperr.E(apperr.Authorization, "Non autorisé"))
		return
	}
	if err := a.ensureAdminsRemain(r.Context(), id); err != nil {
		a.writeErr(w, r, "delete user", err)
		return
	}
	if err := a.store.DeleteUser(r.Context(), id); err != nil {
		a.writeErr(w, r, "delete user", orNotFound(err, "Utilisateur non trouvé"))
		return
	}
	a.log.Info("user deleted", "user_id", id)
	writeMessage(w, http.StatusOK, "Utilisateur supprimé avec succès")
}

// ensureAdminsRemain refuses to delete a user who is the only admin of a
// project they do not own. Owned projects go away with the account.
func (a *api) ensureAdminsRemain(ctx context.Context, userID int64) error {
	projects, err := a.store.ProjectsForUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, p := range projects {
		if p.OwnerID == userID || p.Role != access.Admin {
			continue
		}
		members, err := a.store.Members(ctx, p.ID)
		if err != nil {
			return err
		}
		if err := access.EnsureAdminRemains(memberships(members), userID, access.None); err != nil {
			return err
		}
	}
	return nil
}
