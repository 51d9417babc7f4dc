package store

import (
	"context"
	"fmt"

	"devconnect/internal/access"
	"devconnect/internal/auth"
	"devconnect/internal/board"
)

const DemoPassword = "password123"

type SeedResult struct {
	Skipped  bool
	Users    []User
	Projects []Project
}

type demoTask struct {
	project  int
	phase    int
	title    string
	desc     string
	priority board.Priority
	assignee int
	comments []demoComment
}

type demoComment struct {
	author  int
	content string
}

var (
	demoUsers = [][2]string{
		{"admin", "admin@devconnect.com"},
		{"john_doe", "john@devconnect.com"},
		{"jane_smith", "jane@devconnect.com"},
	}
	demoProjects = [][2]string{
		{"Projet DevConnect", "Plateforme collaborative pour développeurs"},
		{"API REST", "Développement de l'API backend"},
	}
	demoTasks = []demoTask{
		{0, 2, "Créer le modèle User", "Implémenter le modèle User avec SQLite", board.High, 0, []demoComment{
			{0, "Modèle User créé avec succès !"},
			{1, "N'oubliez pas d'ajouter la validation des emails"},
		}},
		{0, 1, "Développer les routes API", "Créer les routes pour l'authentification", board.High, 1, []demoComment{
			{1, "En cours de développement"},
		}},
		{0, 0, "Tester les endpoints", "Écrire les tests unitaires", board.Medium, 2, []demoComment{
			{0, "Besoin d'aide pour les tests ?"},
		}},
		{1, 0, "Documentation API", "Rédiger la documentation Swagger", board.Low, 0, nil},
	}
)

// Seed fills an empty database with demo users, projects, tasks and
// comments. It does nothing when any user exists.
func (s *Store) Seed(ctx context.Context) (SeedResult, error) {
	n, err := s.CountUsers(ctx)
	if err != nil {
		return SeedResult{}, err
	}
	if n > 0 {
		return SeedResult{Skipped: true}, nil
	}

	hash, err := auth.HashPassword(DemoPassword)
	if err != nil {
		return SeedResult{}, err
	}
	var res SeedResult
	for _, du := range demoUsers {
		u, err := s.CreateUser(ctx, du[0], du[1], hash)
		if err != nil {
			return res, fmt.Errorf("seed user %s: %w", du[1], err)
		}
		res.Users = append(res.Users, u)
	}
	admin, john, jane := res.Users[0], res.Users[1], res.Users[2]

	for _, dp := range demoProjects {
		p, err := s.CreateProject(ctx, admin.ID, dp[0], dp[1])
		if err != nil {
			return res, fmt.Errorf("seed project %s: %w", dp[0], err)
		}
		res.Projects = append(res.Projects, p)
	}
	members := []struct {
		project int
		user    User
		role    access.Role
		title   access.Title
	}{
		{0, john, access.Member, access.TitleDeveloper},
		{0, jane, access.Member, access.TitleDesigner},
		{1, john, access.Admin, access.TitleAdmin},
	}
	for _, m := range members {
		if err := s.AddMember(ctx, res.Projects[m.project].ID, m.user.ID, m.role, m.title); err != nil {
			return res, fmt.Errorf("seed member: %w", err)
		}
	}

	for _, dt := range demoTasks {
		projectID := res.Projects[dt.project].ID
		b, err := s.LoadBoard(ctx, projectID)
		if err != nil {
			return res, err
		}
		assignee := res.Users[dt.assignee].ID
		c, err := s.apply(ctx, b, board.AddTicket{
			PhaseID:     b.Phases[dt.phase].ID,
			Title:       dt.title,
			Description: dt.desc,
			Priority:    dt.priority,
			AssigneeID:  &assignee,
			CreatedAt:   s.stamp(),
		})
		if err != nil {
			return res, fmt.Errorf("seed task %q: %w", dt.title, err)
		}
		taskID := c.NewID
		for _, dc := range dt.comments {
			c, err = s.apply(ctx, c.Board, board.AddComment{
				TicketID: taskID,
				AuthorID: res.Users[dc.author].ID,
				Content:  dc.content,
				At:       s.stamp(),
			})
			if err != nil {
				return res, fmt.Errorf("seed comment: %w", err)
			}
		}
	}
	return res, nil
}

func (s *Store) apply(ctx context.Context, b board.Board, cmd board.Command) (Commit, error) {
	_, events, err := board.Apply(b, cmd)
	if err != nil {
		return Commit{}, err
	}
	return s.Commit(ctx, b.ProjectID, events)
}
