package access

import (
	"context"

	"devconnect/internal/apperr"
)

// Action is an operation on a project or its contents.
type Action int

const (
	ViewProject Action = iota
	UpdateProject
	DeleteProject
	ManageMembers
	CreatePhase
	UpdatePhase
	MovePhase
	DeletePhase
	CreateTask
	UpdateTask
	MoveTask
	DeleteTask
	CreateComment
	DeleteComment
)

var adminOnly = map[Action]bool{
	UpdateProject: true,
	DeleteProject: true,
	ManageMembers: true,
	DeletePhase:   true,
	DeleteTask:    true,
}

var deniedMessages = map[Action]string{
	UpdateProject: "Seuls les admins peuvent modifier le projet",
	DeleteProject: "Seuls les admins peuvent supprimer le projet",
	ManageMembers: "Seuls les admins peuvent gérer les membres",
	DeletePhase:   "Seuls les admins peuvent supprimer des phases",
	DeleteTask:    "Seuls les admins peuvent supprimer des tâches",
	DeleteComment: "Non autorisé",
}

// Allowed reports whether role may perform action. Admin-only actions match
// the admin tag exactly; everything else only needs a membership.
// DeleteComment additionally depends on authorship, see CanDeleteComment.
func Allowed(role Role, action Action) bool {
	if role == None {
		return false
	}
	if adminOnly[action] {
		return role == Admin
	}
	return role.Valid()
}

// Require is Allowed as an error.
func Require(role Role, action Action) error {
	if Allowed(role, action) {
		return nil
	}
	if role == None {
		return apperr.E(apperr.Authorization, "Vous n'êtes pas membre de ce projet")
	}
	if msg, ok := deniedMessages[action]; ok {
		return apperr.E(apperr.Authorization, msg)
	}
	return apperr.E(apperr.Authorization, "Accès refusé")
}

// CanDeleteComment allows the comment's author or a project admin. The
// author still has to be a member of the project.
func CanDeleteComment(role Role, actorID, authorID int64) bool {
	if role == None {
		return false
	}
	return role == Admin || actorID == authorID
}

// RoleLookup reads a stored membership. It returns None and a nil error when
// the user is not a member.
type RoleLookup interface {
	MemberRole(ctx context.Context, projectID, userID int64) (Role, error)
}

// Authority answers roleOf(project, user) for request handlers.
type Authority struct {
	lookup RoleLookup
}

func NewAuthority(lookup RoleLookup) *Authority { return &Authority{lookup: lookup} }

// RoleOf returns the user's role in the project, None if they have none.
// The error is only set when the lookup itself failed.
func (a *Authority) RoleOf(ctx context.Context, projectID, userID int64) (Role, error) {
	role, err := a.lookup.MemberRole(ctx, projectID, userID)
	if err != nil {
		return None, err
	}
	return role, nil
}

// Authorize resolves the role and checks it against action in one step.
// It returns the resolved role so callers can reuse it.
func (a *Authority) Authorize(ctx context.Context, projectID, userID int64, action Action) (Role, error) {
	role, err := a.RoleOf(ctx, projectID, userID)
	if err != nil {
		return None, err
	}
	return role, Require(role, action)
}

// Membership is the part of a project member the admin guard looks at.
type Membership struct {
	UserID int64
	Role   Role
}

// EnsureAdminRemains rejects a change that would leave the project without
// an admin. next is the target user's new role, None for a removal.
func EnsureAdminRemains(members []Membership, userID int64, next Role) error {
	if next == Admin {
		return nil
	}
	admins := 0
	targetIsAdmin := false
	for _, m := range members {
		if m.Role != Admin {
			continue
		}
		admins++
		if m.UserID == userID {
			targetIsAdmin = true
		}
	}
	if targetIsAdmin && admins == 1 {
		return apperr.E(apperr.Conflict, "Le projet doit conserver au moins un admin")
	}
	return nil
}
