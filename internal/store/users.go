package store

import (
	"context"
	"strconv"
	"strings"
)

const userCols = `id, username, email, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt); err != nil {
		return User{}, mapErr(err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

// CreateUser inserts a user. A taken email yields ErrConflict.
func (s *Store) CreateUser(ctx context.Context, username, email, passwordHash string) (User, error) {
	row := s.db.QueryRowContext(ctx,
		`insert into users(username, email, password_hash, created_at) values($1,$2,$3,$4) returning `+userCols,
		username, email, passwordHash, s.stamp())
	return scanUser(row)
}

func (s *Store) UserByID(ctx context.Context, id int64) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `select `+userCols+` from users where id=$1`, id))
}

// UserCredsByEmail returns the user and their password hash.
func (s *Store) UserCredsByEmail(ctx context.Context, email string) (User, string, error) {
	var u User
	var hash string
	err := s.db.QueryRowContext(ctx,
		`select id, username, email, created_at, password_hash from users where email=$1`, email).
		Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt, &hash)
	if err != nil {
		return User{}, "", mapErr(err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, hash, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `select `+userCols+` from users order by username, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) UpdateUsername(ctx context.Context, id int64, username string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`update users set username=$1 where id=$2 returning `+userCols, username, id))
}

// DeleteUser removes the user together with the projects they own, their
// memberships and their comments.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `delete from users where id=$1`, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `select count(*) from users`).Scan(&n)
	return n, err
}

// Usernames maps the given user ids to their usernames. Unknown ids are
// left out.
func (s *Store) Usernames(ctx context.Context, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = "$" + strconv.Itoa(i+1)
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`select id, username from users where id in (`+strings.Join(marks, ",")+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = name
	}
	return out, rows.Err()
}
