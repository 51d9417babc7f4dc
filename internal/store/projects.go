package store

import (
	"context"
	"database/sql"
	"errors"

	"devconnect/internal/access"
	"devconnect/internal/board"
)

const projectCols = `id, name, description, owner_id, created_at`

func scanProject(row scanner) (Project, error) {
	var p Project
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &p.CreatedAt); err != nil {
		return Project{}, mapErr(err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

// CreateProject inserts the project, makes the owner its admin and lays out
// the default phases, all in one transaction.
func (s *Store) CreateProject(ctx context.Context, ownerID int64, name, description string) (Project, error) {
	now := s.stamp()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Project{}, err
	}
	defer rollback(tx)

	p, err := scanProject(tx.QueryRowContext(ctx,
		`insert into projects(name, description, owner_id, created_at) values($1,$2,$3,$4) returning `+projectCols,
		name, description, ownerID, now))
	if err != nil {
		return Project{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`insert into project_members(project_id, user_id, role, title) values($1,$2,$3,$4)`,
		p.ID, ownerID, string(access.Admin), string(access.TitleAdmin)); err != nil {
		return Project{}, mapErr(err)
	}
	pos := int64(1000)
	for _, ph := range board.DefaultPhases {
		if _, err := tx.ExecContext(ctx,
			`insert into phases(project_id, title, color, pos, created_at) values($1,$2,$3,$4,$5)`,
			p.ID, ph.Title, string(ph.Color), pos, now); err != nil {
			return Project{}, err
		}
		pos += 1000
	}
	if err := tx.Commit(); err != nil {
		return Project{}, err
	}
	p.Role = access.Admin
	return p, nil
}

func (s *Store) ProjectByID(ctx context.Context, id int64) (Project, error) {
	return scanProject(s.db.QueryRowContext(ctx, `select `+projectCols+` from projects where id=$1`, id))
}

// ProjectsForUser lists the projects the user belongs to, newest first, with
// the user's role on each.
func (s *Store) ProjectsForUser(ctx context.Context, userID int64) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.name, p.description, p.owner_id, p.created_at, m.role
		from projects p join project_members m on m.project_id = p.id
		where m.user_id=$1
		order by p.created_at desc, p.id desc`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Project{}
	for rows.Next() {
		var p Project
		var role string
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &p.CreatedAt, &role); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		p.Role, _ = access.ParseRole(role)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) UpdateProject(ctx context.Context, id int64, name, description string) (Project, error) {
	return scanProject(s.db.QueryRowContext(ctx,
		`update projects set name=$1, description=$2 where id=$3 returning `+projectCols, name, description, id))
}

// DeleteProject removes the project; phases, tasks, comments and
// memberships go with it.
func (s *Store) DeleteProject(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `delete from projects where id=$1`, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (s *Store) Members(ctx context.Context, projectID int64) ([]Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		select u.id, u.username, u.email, m.role, m.title
		from project_members m join users u on u.id = m.user_id
		where m.project_id=$1
		order by case when m.role = 'admin' then 0 else 1 end, u.username, u.id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Member{}
	for rows.Next() {
		var m Member
		var role, title string
		if err := rows.Scan(&m.UserID, &m.Username, &m.Email, &role, &title); err != nil {
			return nil, err
		}
		m.Role, _ = access.ParseRole(role)
		m.Title = access.Title(title)
		out = append(out, m)
	}
	return out, rows.Err()
}

// AddMember adds a user to the project. Adding an existing member yields
// ErrConflict.
func (s *Store) AddMember(ctx context.Context, projectID, userID int64, role access.Role, title access.Title) error {
	_, err := s.db.ExecContext(ctx,
		`insert into project_members(project_id, user_id, role, title) values($1,$2,$3,$4)`,
		projectID, userID, string(role), string(title))
	return mapErr(err)
}

func (s *Store) UpdateMember(ctx context.Context, projectID, userID int64, role access.Role, title access.Title) error {
	res, err := s.db.ExecContext(ctx,
		`update project_members set role=$1, title=$2 where project_id=$3 and user_id=$4`,
		string(role), string(title), projectID, userID)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// RemoveMember drops the membership and, in the same transaction, takes the
// user off every task of the project: attachments are removed and
// assignments cleared.
func (s *Store) RemoveMember(ctx context.Context, projectID, userID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)

	res, err := tx.ExecContext(ctx,
		`delete from project_members where project_id=$1 and user_id=$2`, projectID, userID)
	if err != nil {
		return err
	}
	if err := expectOne(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		delete from task_members
		where user_id=$1 and task_id in (select id from tasks where project_id=$2)`, userID, projectID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`update tasks set assigned_to=null where project_id=$1 and assigned_to=$2`, projectID, userID); err != nil {
		return err
	}
	return tx.Commit()
}

// MemberRole implements access.RoleLookup. Users outside the project get
// access.None and no error.
func (s *Store) MemberRole(ctx context.Context, projectID, userID int64) (access.Role, error) {
	var role string
	err := s.db.QueryRowContext(ctx,
		`select role from project_members where project_id=$1 and user_id=$2`, projectID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return access.None, nil
	}
	if err != nil {
		return access.None, err
	}
	r, _ := access.ParseRole(role)
	return r, nil
}
