package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"devconnect/internal/board"
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// LoadBoard reads the project's phases, tasks, task members and comments
// into a board snapshot ordered by position.
func (s *Store) LoadBoard(ctx context.Context, projectID int64) (board.Board, error) {
	return loadBoard(ctx, s.db, projectID)
}

func loadBoard(ctx context.Context, q querier, projectID int64) (board.Board, error) {
	var one int
	if err := q.QueryRowContext(ctx, `select 1 from projects where id=$1`, projectID).Scan(&one); err != nil {
		return board.Board{}, mapErr(err)
	}
	b := board.Board{ProjectID: projectID, Phases: []board.Phase{}}

	phaseAt := map[int64]int{}
	rows, err := q.QueryContext(ctx,
		`select id, title, color from phases where project_id=$1 order by pos, id`, projectID)
	if err != nil {
		return b, err
	}
	for rows.Next() {
		p := board.Phase{ProjectID: projectID, Tickets: []board.Ticket{}}
		if err := rows.Scan(&p.ID, &p.Title, &p.Color); err != nil {
			rows.Close()
			return b, err
		}
		phaseAt[p.ID] = len(b.Phases)
		b.Phases = append(b.Phases, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return b, err
	}

	type slot struct{ pi, ti int }
	taskAt := map[int64]slot{}
	rows, err = q.QueryContext(ctx, `
		select id, phase_id, title, description, priority, assigned_to, created_at
		from tasks where project_id=$1 order by pos, id`, projectID)
	if err != nil {
		return b, err
	}
	for rows.Next() {
		t := board.Ticket{Members: []int64{}, Comments: []board.Comment{}}
		var assignee sql.NullInt64
		if err := rows.Scan(&t.ID, &t.PhaseID, &t.Title, &t.Description, &t.Priority, &assignee, &t.CreatedAt); err != nil {
			rows.Close()
			return b, err
		}
		if assignee.Valid {
			v := assignee.Int64
			t.AssigneeID = &v
		}
		t.CreatedAt = t.CreatedAt.UTC()
		pi, ok := phaseAt[t.PhaseID]
		if !ok {
			continue
		}
		taskAt[t.ID] = slot{pi, len(b.Phases[pi].Tickets)}
		b.Phases[pi].Tickets = append(b.Phases[pi].Tickets, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return b, err
	}

	rows, err = q.QueryContext(ctx, `
		select tm.task_id, tm.user_id
		from task_members tm join tasks t on t.id = tm.task_id
		where t.project_id=$1 order by tm.task_id, tm.user_id`, projectID)
	if err != nil {
		return b, err
	}
	for rows.Next() {
		var taskID, userID int64
		if err := rows.Scan(&taskID, &userID); err != nil {
			rows.Close()
			return b, err
		}
		if at, ok := taskAt[taskID]; ok {
			t := &b.Phases[at.pi].Tickets[at.ti]
			t.Members = append(t.Members, userID)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return b, err
	}

	rows, err = q.QueryContext(ctx, `
		select c.id, c.task_id, c.user_id, c.content, c.created_at
		from comments c join tasks t on t.id = c.task_id
		where t.project_id=$1 order by c.created_at, c.id`, projectID)
	if err != nil {
		return b, err
	}
	defer rows.Close()
	for rows.Next() {
		var c board.Comment
		if err := rows.Scan(&c.ID, &c.TicketID, &c.AuthorID, &c.Content, &c.CreatedAt); err != nil {
			return b, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		if at, ok := taskAt[c.TicketID]; ok {
			t := &b.Phases[at.pi].Tickets[at.ti]
			t.Comments = append(t.Comments, c)
		}
	}
	return b, rows.Err()
}

// Commit is the outcome of persisting one command's events.
type Commit struct {
	Board board.Board
	// NewID is the id assigned to the phase, task or comment the events
	// created, or zero.
	NewID int64
}

// Commit writes the events in a single transaction and returns the board as
// stored afterwards. Positions of every touched phase list or task list are
// renumbered 1000, 2000, ... so the stored order matches the snapshot.
func (s *Store) Commit(ctx context.Context, projectID int64, events []board.Event) (Commit, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Commit{}, err
	}
	defer rollback(tx)

	var newID int64
	for _, ev := range events {
		id, err := s.persist(ctx, tx, projectID, ev)
		if err != nil {
			return Commit{}, fmt.Errorf("persist %s: %w", ev.Kind(), err)
		}
		if id != 0 {
			newID = id
		}
	}
	if err := tx.Commit(); err != nil {
		return Commit{}, err
	}
	b, err := s.LoadBoard(ctx, projectID)
	if err != nil {
		return Commit{}, err
	}
	return Commit{Board: b, NewID: newID}, nil
}

func (s *Store) persist(ctx context.Context, tx *sql.Tx, projectID int64, ev board.Event) (int64, error) {
	switch e := ev.(type) {
	case board.PhaseAdded:
		var id int64
		err := tx.QueryRowContext(ctx,
			`insert into phases(project_id, title, color, pos, created_at) values($1,$2,$3,$4,$5) returning id`,
			projectID, e.Phase.Title, string(e.Phase.Color), 0, s.stamp()).Scan(&id)
		if err != nil {
			return 0, err
		}
		return id, renumber(ctx, tx, "phases", projectID, e.Order, id)

	case board.PhaseUpdated:
		res, err := tx.ExecContext(ctx, `update phases set title=$1, color=$2 where id=$3 and project_id=$4`,
			e.Title, string(e.Color), e.PhaseID, projectID)
		if err != nil {
			return 0, err
		}
		return 0, expectOne(res)

	case board.PhaseDeleted:
		res, err := tx.ExecContext(ctx, `delete from phases where id=$1 and project_id=$2`, e.PhaseID, projectID)
		if err != nil {
			return 0, err
		}
		return 0, expectOne(res)

	case board.PhasesReordered:
		return 0, renumber(ctx, tx, "phases", projectID, e.Order, 0)

	case board.TicketAdded:
		t := e.Ticket
		created := t.CreatedAt.UTC().Truncate(time.Microsecond)
		if t.CreatedAt.IsZero() {
			created = s.stamp()
		}
		var id int64
		err := tx.QueryRowContext(ctx, `
			insert into tasks(title, description, priority, project_id, phase_id, assigned_to, pos, created_at)
			values($1,$2,$3,$4,$5,$6,$7,$8) returning id`,
			t.Title, t.Description, string(t.Priority), projectID, t.PhaseID, t.AssigneeID, 0, created).Scan(&id)
		if err != nil {
			return 0, err
		}
		return id, renumber(ctx, tx, "tasks", projectID, e.Order, id)

	case board.TicketUpdated:
		t := e.Ticket
		res, err := tx.ExecContext(ctx,
			`update tasks set title=$1, description=$2, priority=$3, assigned_to=$4 where id=$5 and project_id=$6`,
			t.Title, t.Description, string(t.Priority), t.AssigneeID, t.ID, projectID)
		if err != nil {
			return 0, err
		}
		return 0, expectOne(res)

	case board.TicketDeleted:
		res, err := tx.ExecContext(ctx, `delete from tasks where id=$1 and project_id=$2`, e.TicketID, projectID)
		if err != nil {
			return 0, err
		}
		return 0, expectOne(res)

	case board.TicketMoved:
		if e.FromPhaseID != e.ToPhaseID {
			res, err := tx.ExecContext(ctx, `update tasks set phase_id=$1 where id=$2 and project_id=$3`,
				e.ToPhaseID, e.TicketID, projectID)
			if err != nil {
				return 0, err
			}
			if err := expectOne(res); err != nil {
				return 0, err
			}
			if err := renumber(ctx, tx, "tasks", projectID, e.FromOrder, 0); err != nil {
				return 0, err
			}
		}
		return 0, renumber(ctx, tx, "tasks", projectID, e.ToOrder, 0)

	case board.TicketMembersChanged:
		if _, err := tx.ExecContext(ctx, `delete from task_members where task_id=$1`, e.TicketID); err != nil {
			return 0, err
		}
		for _, uid := range e.Members {
			if _, err := tx.ExecContext(ctx, `insert into task_members(task_id, user_id) values($1,$2)`, e.TicketID, uid); err != nil {
				return 0, mapErr(err)
			}
		}
		return 0, nil

	case board.CommentAdded:
		c := e.Comment
		var id int64
		err := tx.QueryRowContext(ctx,
			`insert into comments(content, task_id, user_id, created_at) values($1,$2,$3,$4) returning id`,
			c.Content, c.TicketID, c.AuthorID, c.CreatedAt.UTC()).Scan(&id)
		return id, err

	case board.CommentDeleted:
		res, err := tx.ExecContext(ctx, `delete from comments where id=$1 and task_id=$2`, e.CommentID, e.TicketID)
		if err != nil {
			return 0, err
		}
		return 0, expectOne(res)
	}
	return 0, fmt.Errorf("unknown event %T", ev)
}

// renumber rewrites pos for ids in order; a zero id stands for newID.
func renumber(ctx context.Context, tx *sql.Tx, table string, projectID int64, ids []int64, newID int64) error {
	q := `update ` + table + ` set pos=$1 where id=$2 and project_id=$3`
	pos := int64(1000)
	for _, id := range ids {
		if id == 0 {
			id = newID
		}
		if _, err := tx.ExecContext(ctx, q, pos, id, projectID); err != nil {
			return err
		}
		pos += 1000
	}
	return nil
}

func (s *Store) projectOf(ctx context.Context, query string, id int64) (int64, error) {
	var projectID int64
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&projectID); err != nil {
		return 0, mapErr(err)
	}
	return projectID, nil
}

func (s *Store) ProjectOfPhase(ctx context.Context, phaseID int64) (int64, error) {
	return s.projectOf(ctx, `select project_id from phases where id=$1`, phaseID)
}

func (s *Store) ProjectOfTask(ctx context.Context, taskID int64) (int64, error) {
	return s.projectOf(ctx, `select project_id from tasks where id=$1`, taskID)
}

func (s *Store) ProjectOfComment(ctx context.Context, commentID int64) (int64, error) {
	return s.projectOf(ctx,
		`select t.project_id from comments c join tasks t on t.id = c.task_id where c.id=$1`, commentID)
}
